// cmd/spot/migrate_status.go
package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vlucas/spot/pkg/types"
)

func newMigrateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of all migrations",
		Long:  `Displays which migrations have been applied and which are pending based on files in the migration directory and records in the database.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.openRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			status, err := r.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration status command failed: %w", err)
			}
			if len(status) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No migrations found in '%s'.\n", r.Directory())
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range status {
				state, at := "pending", ""
				if s.Applied {
					state, at = "applied", s.AppliedAt.UTC().Format(types.DatetimeFormat)
				}
				if s.Missing {
					state = "missing"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, state, at)
			}
			return w.Flush()
		},
	}
}
