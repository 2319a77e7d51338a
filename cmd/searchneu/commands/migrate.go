package commands

import (
	"github.com/spf13/cobra"

	"github.com/sandboxnu/searchneu-sub001/logging"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates any missing database table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.Ctx(ctx)

		d, err := openDatabase(ctx, log)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.EnsureSchema(ctx); err != nil {
			return err
		}
		log.Info().Msg("schema applied")
		return nil
	},
}
