package main

import (
	"fmt"

	"github.com/aevon-lab/adselect/internal/core/storage/postgres"
	"github.com/aevon-lab/adselect/internal/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Type != "postgres" {
				return fmt.Errorf("migrate requires database.type postgres, got %q", cfg.Database.Type)
			}

			db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
			if err != nil {
				return err
			}
			defer db.Close()

			// Explicit invocation always applies, regardless of database.auto_migrate.
			res, err := migrations.RunMigrations(db, true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d -> %d\n", res.FromVersion, res.ToVersion)
			return nil
		},
	}
}
