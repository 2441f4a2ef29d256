package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/techradar/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Applies or rolls back the Postgres schema",
		Annotations: map[string]string{skipApp: "true"},
	}

	up := &cobra.Command{
		Use:         "up",
		Short:       "Applies every pending migration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return postgres.MigrateUp(e.cfg.DB.DSN, e.logger.Named("migrate"))
		},
	}

	var steps int
	down := &cobra.Command{
		Use:         "down",
		Short:       "Rolls back the most recent migrations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return postgres.MigrateDown(e.cfg.DB.DSN, steps, e.logger.Named("migrate"))
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
