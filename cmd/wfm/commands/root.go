package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/pkg/config"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wfm",
	Short: "warframe.market order book collector and set analytics",
	Long: `wfm - Warframe Market set-crafting analytics

Polls the public warframe.market API, keeps monthly order book
snapshots on disk and publishes per-set crafting profitability tables.

Usage:
  go run ./cmd/wfm [command]

Examples:
  go run ./cmd/wfm collect all
  go run ./cmd/wfm analytics run
  go run ./cmd/wfm serve
  go run ./cmd/wfm schedule start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug level logging")
}

// loadConfig loads the environment configuration, honoring --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
