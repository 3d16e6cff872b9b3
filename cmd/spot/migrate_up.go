// cmd/spot/migrate_up.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long:  `Executes the 'Up' section of every migration that has not yet been applied to the database.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			applied, err := r.Up(cmd.Context())
			for _, id := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", id)
			}
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			}
			return nil
		},
	}
}
