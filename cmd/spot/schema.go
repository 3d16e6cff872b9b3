// cmd/spot/schema.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlucas/spot/pkg/schema"
	"github.com/vlucas/spot/pkg/spot"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Synchronise tables with entity definitions",
		Long: `Reads entity definitions from a YAML file and creates or alters the
matching tables.`,
	}
	var dryRun, showQueries bool
	migrate := &cobra.Command{
		Use:   "migrate <definitions.yaml>",
		Short: "Create or update the tables of the given definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := readDefinitions(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			m, err := spot.OpenWriter(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer m.Config().Close()

			for _, def := range defs {
				if dryRun {
					stmts, err := m.MigrateSQL(cmd.Context(), def)
					if err != nil {
						return err
					}
					for _, stmt := range stmts {
						fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
					}
					continue
				}
				if err := m.Migrate(cmd.Context(), def); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s (%s)\n", def.Name, def.Source)
			}
			if showQueries {
				for _, q := range m.Config().QueryLog().Queries() {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", q.Adapter, q.SQL)
				}
			}
			return nil
		},
	}
	migrate.Flags().BoolVar(&dryRun, "dry-run", false, "Print the statements instead of executing them")
	migrate.Flags().BoolVar(&showQueries, "show-queries", false, "Print the query log once done")
	cmd.AddCommand(migrate)
	return cmd
}

func readDefinitions(path string) ([]*schema.StaticDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definitions: %w", err)
	}
	defer f.Close()
	defs, err := schema.LoadDefinitions(f)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no entity definitions in '%s'", path)
	}
	return defs, nil
}
