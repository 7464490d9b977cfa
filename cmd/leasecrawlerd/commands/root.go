// Package commands implements leasecrawlerd's Cobra CLI: the daemon entry
// point (start), crawler history inspection (history), account bootstrap
// (accounts), and schema migration (migrate).
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/sharelease/internal/leaseconfig"
	"github.com/marmos91/sharelease/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "leasecrawlerd",
	Short: "Lease accounting and garbage-collection daemon for a distributed storage server",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: "+leaseconfig.DefaultConfigPath()+")")
	rootCmd.AddCommand(startCmd, historyCmd, accountsCmd, migrateCmd)
}

// loadConfig loads configuration from --config (or the default location)
// and initializes the logger from it.
func loadConfig() (*leaseconfig.Config, error) {
	cfg, err := leaseconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
