package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spigell/hh-assistant/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		log, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return errors.New("database.url is required (or HH_ASSISTANT_DATABASE_URL)")
		}

		pg, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
