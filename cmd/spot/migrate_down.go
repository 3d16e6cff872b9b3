// cmd/spot/migrate_down.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateDownCmd(a *app) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the last applied migration(s)",
		Long:  `Executes the 'Down' section of the last applied migrations, newest first. Defaults to reverting one migration.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			reverted, err := r.Down(cmd.Context(), steps)
			for _, id := range reverted {
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s\n", id)
			}
			if err != nil {
				return fmt.Errorf("failed to revert migrations: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "s", 1, "Number of migrations to revert")
	return cmd
}
