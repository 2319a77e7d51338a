// Package config loads layered settings: struct defaults, then an optional
// YAML file, then SEARCHNEU_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/fetch"
	"github.com/sandboxnu/searchneu-sub001/logging"
	"github.com/sandboxnu/searchneu-sub001/validation"
)

const (
	// EnvPrefix marks the environment variables read as overrides. Nested
	// keys are separated by a double underscore:
	// SEARCHNEU_FETCH__MAX_CONCURRENT sets fetch.max_concurrent.
	EnvPrefix = "SEARCHNEU_"
	// PathEnvVar names the config file when no path is given explicitly.
	PathEnvVar = EnvPrefix + "CONFIG"
	// DefaultPath is used when it exists and nothing else names a file.
	DefaultPath = "config.yaml"

	// DateLayout is the layout of a term's active_until.
	DateLayout = "2006-01-02"
)

type Config struct {
	Database         DatabaseConfig `koanf:"database"`
	Banner           BannerConfig   `koanf:"banner"`
	Fetch            FetchConfig    `koanf:"fetch"`
	Cache            CacheConfig    `koanf:"cache"`
	Logging          LoggingConfig  `koanf:"logging"`
	Metrics          MetricsConfig  `koanf:"metrics"`
	ProgressInterval time.Duration  `koanf:"progress_interval" validate:"gte=0"`
	Terms            []TermConfig   `koanf:"terms" validate:"dive"`
}

type DatabaseConfig struct {
	URL       string `koanf:"url" validate:"omitempty,url"`
	ChunkSize int    `koanf:"chunk_size" validate:"gte=1"`
}

type BannerConfig struct {
	BaseURL    string `koanf:"base_url" validate:"required,url"`
	PageSize   int    `koanf:"page_size" validate:"gte=1,lte=500"`
	CookiePool int    `koanf:"cookie_pool" validate:"gte=1"`
}

type FetchConfig struct {
	MaxConcurrent     int           `koanf:"max_concurrent" validate:"gte=1"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0"`
	InitialRetryDelay time.Duration `koanf:"initial_retry_delay" validate:"gte=0"`
	MaxRetryDelay     time.Duration `koanf:"max_retry_delay" validate:"gtefield=InitialRetryDelay"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier" validate:"gte=1"`
	ThrottleDelay     time.Duration `koanf:"throttle_delay" validate:"gte=0"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerCooldown   time.Duration `koanf:"breaker_cooldown" validate:"gte=0"`
}

type CacheConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	// Pushgateway is pushed to after each command when set.
	Pushgateway string `koanf:"pushgateway" validate:"omitempty,url"`
	Job         string `koanf:"job" validate:"required"`
}

// TermConfig is a term the pipeline keeps in sync.
type TermConfig struct {
	Term string `koanf:"term" validate:"numeric,len=6"`
	// ActiveUntil is a DateLayout date after which the term is no longer
	// selected as active. Empty means active indefinitely.
	ActiveUntil string `koanf:"active_until" validate:"omitempty,datetime=2006-01-02"`
}

// Until parses ActiveUntil, returning nil when it is empty or malformed.
func (t TermConfig) Until() *time.Time {
	if t.ActiveUntil == "" {
		return nil
	}
	until, err := time.Parse(DateLayout, t.ActiveUntil)
	if err != nil {
		return nil
	}
	return &until
}

// Active reports whether now falls before the term's ActiveUntil.
func (t TermConfig) Active(now time.Time) bool {
	until := t.Until()
	return until == nil || now.Before(*until)
}

func Default() *Config {
	fetchDefaults := fetch.DefaultConfig()
	bannerDefaults := banner.DefaultConfig()
	logDefaults := logging.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{ChunkSize: 1000},
		Banner: BannerConfig{
			BaseURL:    bannerDefaults.BaseURL,
			PageSize:   bannerDefaults.PageSize,
			CookiePool: bannerDefaults.CookiePool,
		},
		Fetch: FetchConfig{
			MaxConcurrent:     fetchDefaults.MaxConcurrent,
			MaxRetries:        fetchDefaults.MaxRetries,
			InitialRetryDelay: fetchDefaults.InitialRetryDelay,
			MaxRetryDelay:     fetchDefaults.MaxRetryDelay,
			BackoffMultiplier: fetchDefaults.BackoffMultiplier,
			ThrottleDelay:     fetchDefaults.ThrottleDelay,
			Timeout:           fetchDefaults.Timeout,
			BreakerFailures:   fetchDefaults.BreakerFailures,
			BreakerCooldown:   fetchDefaults.BreakerCooldown,
		},
		Cache:            CacheConfig{Dir: "cache"},
		Logging:          LoggingConfig{Level: logDefaults.Level, Format: logDefaults.Format},
		Metrics:          MetricsConfig{Job: "searchneu"},
		ProgressInterval: 5 * time.Second,
		Terms:            []TermConfig{},
	}
}

// Load layers defaults, the config file and the environment. An empty path
// falls back to PathEnvVar, then to DefaultPath if it exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(path string) (string, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(PathEnvVar)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: %w", err)
	}
	return path, nil
}

// envKey maps SEARCHNEU_FETCH__MAX_CONCURRENT to fetch.max_concurrent. The
// config path variable is not a setting and is skipped.
func envKey(key string) string {
	if key == PathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]bool, len(c.Terms))
	for _, t := range c.Terms {
		if seen[t.Term] {
			return fmt.Errorf("config: term %s listed twice", t.Term)
		}
		seen[t.Term] = true
	}
	return nil
}

// FetchEngine builds the fetch engine settings.
func (c *Config) FetchEngine(logger zerolog.Logger, observers ...fetch.Observer) fetch.Config {
	cfg := fetch.DefaultConfig()
	cfg.MaxConcurrent = c.Fetch.MaxConcurrent
	cfg.MaxRetries = c.Fetch.MaxRetries
	cfg.InitialRetryDelay = c.Fetch.InitialRetryDelay
	cfg.MaxRetryDelay = c.Fetch.MaxRetryDelay
	cfg.BackoffMultiplier = c.Fetch.BackoffMultiplier
	cfg.ThrottleDelay = c.Fetch.ThrottleDelay
	cfg.Timeout = c.Fetch.Timeout
	cfg.BreakerFailures = c.Fetch.BreakerFailures
	cfg.BreakerCooldown = c.Fetch.BreakerCooldown
	cfg.Observers = observers
	cfg.Logger = logger
	return cfg
}

func (c *Config) BannerClient() banner.Config {
	return banner.Config{
		BaseURL:    c.Banner.BaseURL,
		PageSize:   c.Banner.PageSize,
		CookiePool: c.Banner.CookiePool,
	}
}

func (c *Config) Log() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
