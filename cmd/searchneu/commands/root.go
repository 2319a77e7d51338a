package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/config"
	"github.com/sandboxnu/searchneu-sub001/db"
	"github.com/sandboxnu/searchneu-sub001/fetch"
	"github.com/sandboxnu/searchneu-sub001/logging"
	"github.com/sandboxnu/searchneu-sub001/metrics"
)

var (
	configPath string
	verbose    int
	quiet      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "searchneu",
	Short:         "searchneu scrapes the Banner course catalog and keeps a database in sync with it.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		logCfg := cfg.Log()
		logCfg.Level = logging.Verbosity(logCfg.Level, verbose, quiet)
		logging.Init(logCfg)

		cmd.SetContext(logging.WithRunID(cmd.Context(), logging.NewRunID()))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default $"+config.PathEnvVar+" or "+config.DefaultPath+")")
	flags.CountVarP(&verbose, "verbose", "v", "more logging; repeat for trace")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	pushMetrics(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pushMetrics runs after every command, failed or not.
func pushMetrics(ctx context.Context) {
	if cfg == nil || cfg.Metrics.Pushgateway == "" {
		return
	}
	if err := metrics.Push(context.WithoutCancel(ctx), cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
		log := logging.Logger()
		log.Warn().Err(err).Msg("metrics push failed")
	}
}

func newClient(log zerolog.Logger) (*banner.Client, *fetch.Engine) {
	engine := fetch.New(cfg.FetchEngine(log, metrics.FetchObserver{}))
	return banner.New(engine, cfg.BannerClient(), log), engine
}

func openDatabase(ctx context.Context, log zerolog.Logger) (*db.Database, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is not configured")
	}
	d, err := db.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, err
	}
	d.ChunkSize = cfg.Database.ChunkSize
	return d, nil
}

// termFailures reports the terms a multi-term command could not finish.
type termFailures []string

func (f termFailures) err(command string) error {
	if len(f) == 0 {
		return nil
	}
	return fmt.Errorf("%s failed for terms: %s", command, strings.Join(f, ", "))
}
