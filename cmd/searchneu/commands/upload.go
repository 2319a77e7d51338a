package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandboxnu/searchneu-sub001/cache"
	"github.com/sandboxnu/searchneu-sub001/config"
	"github.com/sandboxnu/searchneu-sub001/db"
	"github.com/sandboxnu/searchneu-sub001/logging"
	"github.com/sandboxnu/searchneu-sub001/metrics"
)

var uploadTerms string

func init() {
	uploadCmd.Flags().StringVar(&uploadTerms, "terms", config.SelectActive, `terms to upload: "active", "all" or comma-separated codes`)
	rootCmd.AddCommand(uploadCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload [--terms <selector>]",
	Short: "Reconciles the database with the cache artifacts of terms.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.Ctx(ctx)

		terms, err := config.SelectTerms(cfg.Terms, uploadTerms, time.Now())
		if err != nil {
			return err
		}

		d, err := openDatabase(ctx, log)
		if err != nil {
			return err
		}
		defer d.Close()

		store := cache.New(cfg.Cache.Dir)
		var failed termFailures
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := upload(cmd, d, store, term); err != nil {
				log.Error().Err(err).Str("term", term.Term).Msg("upload failed")
				failed = append(failed, term.Term)
			}
		}
		return failed.err("upload")
	},
}

func upload(cmd *cobra.Command, d *db.Database, store *cache.Store, term config.TermConfig) error {
	entry, err := store.Read(term.Term)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no cache artifact for %s; run generate first", term.Term)
	}
	if err != nil {
		return err
	}

	stats, err := d.Upload(cmd.Context(), &entry.Snapshot, db.UploadOptions{ActiveUntil: term.Until()})
	if err != nil {
		return err
	}
	metrics.ObserveUpload(stats)
	return nil
}
