// cmd/spot/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlucas/spot/pkg/config"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
}

func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return cfg, fmt.Errorf("error loading configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return config.NewLogger(cfg.Logging, cmd.ErrOrStderr())
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "spot",
		Short: "Spot CLI for schema and migration management",
		Long: `The Spot CLI manages databases used with the Spot data mapper:
it migrates entity definitions and runs file based migrations.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "Configuration file (default is ./spot.yaml or $HOME/.spot/spot.yaml)")

	root.AddCommand(newMigrateCmd(a), newSchemaCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: '%s'\n", err)
		os.Exit(1)
	}
}
