package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qagate/qagate/pkg/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLocal(cmd, func(e *localEnv) error {
				if err := db.Migrate(cmd.Context(), e.db, e.cfg.Database.MigrationLock, e.logger); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema migrated (%s)\n", e.cfg.Database.Dialect)
				return nil
			})
		},
	}
}
