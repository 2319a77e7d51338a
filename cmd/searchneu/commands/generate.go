package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sandboxnu/searchneu-sub001/cache"
	"github.com/sandboxnu/searchneu-sub001/config"
	"github.com/sandboxnu/searchneu-sub001/logging"
	"github.com/sandboxnu/searchneu-sub001/metrics"
	"github.com/sandboxnu/searchneu-sub001/scrape"
)

var (
	generateTerms     string
	generateOverwrite bool
)

func init() {
	generateCmd.Flags().StringVar(&generateTerms, "terms", config.SelectActive, `terms to scrape: "active", "all" or comma-separated codes`)
	generateCmd.Flags().BoolVar(&generateOverwrite, "overwrite", false, "scrape terms that already have a cache artifact")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate [--terms <selector>] [--overwrite]",
	Short: "Scrapes terms from Banner and writes their cache artifacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.Ctx(ctx)

		terms, err := config.SelectTerms(cfg.Terms, generateTerms, time.Now())
		if err != nil {
			return err
		}
		if len(terms) == 0 {
			log.Warn().Str("terms", generateTerms).Msg("no terms selected")
			return nil
		}

		store := cache.New(cfg.Cache.Dir)
		client, engine := newClient(log)
		orchestrator := scrape.New(client, scrape.Options{
			Logger:           log,
			Status:           engine,
			ProgressInterval: cfg.ProgressInterval,
			Observer:         scrape.ObserverFunc(logProgress(log)),
		})

		var failed termFailures
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := generate(ctx, log, store, orchestrator, term.Term); err != nil {
				log.Error().Err(err).Str("term", term.Term).Msg("generate failed")
				failed = append(failed, term.Term)
			}
		}
		return failed.err("generate")
	},
}

func generate(ctx context.Context, log zerolog.Logger, store *cache.Store, orchestrator *scrape.Orchestrator, term string) error {
	if !generateOverwrite {
		exists, err := store.Exists(term)
		if err != nil {
			return err
		}
		if exists {
			log.Info().Str("term", term).Str("path", store.Path(term)).Msg("cache artifact exists; skipping")
			return nil
		}
	}

	snapshot, report, err := orchestrator.Scrape(ctx, term)
	metrics.ObserveScrape(report, err)
	if err != nil {
		return err
	}

	path, err := store.Write(snapshot)
	if err != nil {
		return err
	}
	log.Info().
		Str("term", term).
		Str("path", path).
		Int("courses", report.Courses).
		Int("sections", report.Sections).
		Int("failed_items", report.FailureCount()).
		Dur("elapsed", report.Duration).
		Msg("cache artifact written")
	return nil
}

func logProgress(log zerolog.Logger) func(scrape.Progress) {
	return func(p scrape.Progress) {
		log.Info().
			Str("term", p.Term).
			Int64("remaining", p.Status.Remaining()).
			Int64("failed", p.Status.Failed).
			Float64("percent", p.Status.Percent()).
			Dur("elapsed", p.Elapsed).
			Msg("scrape progress")
	}
}
