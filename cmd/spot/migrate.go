// cmd/spot/migrate.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vlucas/spot/pkg/migration"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Allows creating, applying (up), reverting (down), and checking the status of migrations.`,
	}
	cmd.AddCommand(newMigrateCreateCmd(a), newMigrateUpCmd(a), newMigrateDownCmd(a), newMigrateStatusCmd(a))
	return cmd
}

func newMigrateCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <migration_name>",
		Short: "Create a new SQL migration file",
		Long: `Creates a new timestamped SQL migration file in the configured migration directory.
Example: spot migrate create AddUserTable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			path, err := migration.RunCreate(cfg, args[0])
			if err != nil {
				return fmt.Errorf("migration create command failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
}

// openRunner loads the configuration and connects a migration runner.
func (a *app) openRunner(cmd *cobra.Command) (*migration.Runner, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	r, err := migration.Open(cfg, a.logger(cmd, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return r, nil
}
