package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/api"
	"github.com/samutus/warframe-market-collector/internal/api/handlers"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dataset server",
	Long: `Starts the read-only HTTP server over the published dataset.

Endpoints:
  GET  /healthz                        - liveness
  GET  /metrics                        - Prometheus metrics
  GET  /api/status                     - publish status
  GET  /api/sets                       - sets index
  GET  /api/sets/{set_url}             - one set with its parts
  GET  /api/sets/{set_url}/timeseries  - daily series
  GET  /api/sets/{set_url}/parts       - latest part alignment
  GET  /data/...                       - raw table downloads

Example:
  go run ./cmd/wfm serve
  go run ./cmd/wfm serve --port 8087`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Dataset Server ===")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":          cfg.Port,
		"env":           cfg.Env,
		"analytics_dir": cfg.Storage.AnalyticsDir,
	}).Info("Initializing dataset server")

	dataset := handlers.NewDatasetHandler(cfg.Storage.AnalyticsDir, log)
	router := api.NewRouter(cfg, dataset, log)
	server := api.New(cfg, log, router)

	// Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	PrintList([]string{
		"GET /healthz",
		"GET /api/status",
		"GET /api/sets",
		"GET /api/sets/{set_url}/timeseries",
		"GET /data/sets_index.csv",
	})
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
