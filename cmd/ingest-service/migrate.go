package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labor/pkg/bootstrap"
	"labor/pkg/migrations"
)

func migrateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap.Setup(serviceName, configFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := bootstrap.OpenPostgres(cmd.Context(), cfg.Database.Postgres)
			if err != nil {
				log.Errorw("Failed to connect to PostgreSQL", "error", err)
				return err
			}
			defer db.Close()

			switch args[0] {
			case "up":
				err = migrations.MigratePostgres(db)
			case "down":
				err = migrations.RollbackPostgres(db, steps)
			}
			if err != nil {
				return err
			}

			version, dirty, err := migrations.PostgresVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return cmd
}
