package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// testLoggerCmd represents the test-logger command
var testLoggerCmd = &cobra.Command{
	Use:   "test-logger",
	Short: "Demo the structured logger",
	Long: `Exercises the structured logging setup.

This command:
- JSON and console formats
- log levels
- structured field logging
- error context logging

Example:
  go run ./cmd/wfm test-logger`,
	RunE: runTestLogger,
}

func init() {
	rootCmd.AddCommand(testLoggerCmd)
}

func runTestLogger(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Logger Test ===")

	fmt.Println("1. JSON Format (Production)")
	fmt.Println("--------------------------------")
	testJSONFormat()
	fmt.Println()

	fmt.Println("2. Console Format (Development)")
	fmt.Println("--------------------------------")
	testConsoleFormat()
	fmt.Println()

	fmt.Println("3. Structured Logging with Fields")
	fmt.Println("--------------------------------")
	testStructuredLogging()
	fmt.Println()

	fmt.Println("4. Error Logging")
	fmt.Println("--------------------------------")
	testErrorLogging()
	fmt.Println()

	fmt.Println("✅ All logger tests completed!")
	return nil
}

func testJSONFormat() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)
	log.Info("Collector started")
	log.Warn("Upstream responded slowly")
	log.Error("Failed to reach warframe.market")
}

func testConsoleFormat() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "console",
	}

	log := logger.New(cfg)
	log.Debug("Resolving eligibility list")
	log.Info("Snapshot pass started")
	log.Warn("Partition rollback file found, recovering")
}

func testStructuredLogging() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Single field
	itemLog := log.WithField("item_url", "ash_prime_set")
	itemLog.Info("Order book captured")

	// Multiple fields
	snapLog := log.WithFields(map[string]interface{}{
		"item_url":     "ash_prime_blueprint",
		"platform":     "pc",
		"top_buy_avg":  31.5,
		"top_sell_avg": 36.0,
	})
	snapLog.Info("Snapshot recorded")

	// Chained fields
	log.WithField("module", "pipeline").
		WithField("job", "eligibility_screen").
		Info("Scheduled run started")
}

func testErrorLogging() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Simple error
	err := errors.New("connection timeout")
	log.WithError(err).Error("Failed to fetch statistics")

	// Error with context
	log.WithError(err).
		WithFields(map[string]interface{}{
			"retry_count": 3,
			"timeout_ms":  5000,
			"endpoint":    "/items/ash_prime_set/orders",
		}).
		Error("Connection failed after retries")
}
