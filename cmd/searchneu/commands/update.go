package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sandboxnu/searchneu-sub001/config"
	"github.com/sandboxnu/searchneu-sub001/logging"
	"github.com/sandboxnu/searchneu-sub001/metrics"
	"github.com/sandboxnu/searchneu-sub001/updater"
)

var (
	updateTerms string
	updateApply bool
)

func init() {
	updateCmd.Flags().StringVar(&updateTerms, "terms", config.SelectActive, `terms to poll: "active", "all" or comma-separated codes`)
	updateCmd.Flags().BoolVar(&updateApply, "apply", false, "write seat changes and new sections to the database")
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update [--terms <selector>] [--apply]",
	Short: "Polls Banner for seat changes of stored terms.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.Ctx(ctx)

		terms, err := config.SelectTerms(cfg.Terms, updateTerms, time.Now())
		if err != nil {
			return err
		}

		d, err := openDatabase(ctx, log)
		if err != nil {
			return err
		}
		defer d.Close()

		client, _ := newClient(log)
		u := updater.New(client, d, log)

		var failed termFailures
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := u.Run(ctx, term.Term, updateApply)
			if err != nil {
				log.Error().Err(err).Str("term", term.Term).Msg("update failed")
				failed = append(failed, term.Term)
				continue
			}
			metrics.ObserveUpdate(report)
			if len(report.SeatsAvailable) > 0 {
				log.Info().Str("term", term.Term).Strs("crns", report.SeatsAvailable).Msg("seats opened")
			}
		}
		return failed.err("update")
	},
}
