package logger_test

import (
	"errors"

	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// Example_basic demonstrates basic logger usage
func Example_basic() {
	// Load config
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	// Create logger (SSOT)
	log := logger.New(cfg)

	// Basic logging
	log.Debug("This won't appear (level is info)")
	log.Info("Collector started")
	log.Warn("Eligibility file is stale")
	log.Error("Failed to reach upstream")

	// Formatted logging
	log.Infof("Tracking %d items", 412)
	log.Warnf("Retry attempt %d of %d", 3, 5)

}

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Add single field
	itemLog := log.WithField("item_url", "ash_prime_set")
	itemLog.Info("Orderbook polled")

	// Add multiple fields
	snapLog := log.WithFields(map[string]interface{}{
		"item_url": "ash_prime_set",
		"platform": "pc",
		"buy_avg":  98.3,
		"sell_avg": 112.0,
	})
	snapLog.Info("Snapshot recorded")

}

// Example_withError demonstrates error logging
func Example_withError() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.New(cfg)

	// Log with error
	err := errors.New("upstream request timeout")
	log.WithError(err).Error("Failed to fetch orderbook")

	// Combine error with fields
	log.WithError(err).
		WithFields(map[string]interface{}{
			"retry_count": 3,
			"timeout_ms":  5000,
		}).
		Error("Item skipped after retries")

}

// Example_environments demonstrates different log formats
func Example_environments() {
	// Development: Pretty console logs
	devCfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "console",
	}
	devLog := logger.New(devCfg)
	devLog.Debug("Debugging collection cycle")
	devLog.Info("Cycle finished")

	// Production: JSON logs
	prodCfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}
	prodLog := logger.New(prodCfg)
	prodLog.Info("Service started")
	prodLog.Warn("Publish directory almost full")

}
