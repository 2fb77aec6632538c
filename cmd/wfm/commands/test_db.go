package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/pkg/database"
)

// testDBCmd represents the test-db command
var testDBCmd = &cobra.Command{
	Use:   "test-db",
	Short: "Test the Postgres mirror connection",
	Long: `Tests the optional PostgreSQL mirror connection and shows pool
statistics.

This command:
- loads DATABASE_URL from config
- opens the connection pool
- runs Ping and a health check
- prints connection pool statistics

Example:
  go run ./cmd/wfm test-db`,
	RunE: runTestDB,
}

func init() {
	rootCmd.AddCommand(testDBCmd)
}

func runTestDB(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Database Test ===")

	fmt.Println("Loading configuration...")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		PrintWarning("DATABASE_URL not set - the Postgres mirror is disabled")
		return nil
	}
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	fmt.Println("Connecting to database...")
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	fmt.Println("✅ Connection pool established")

	fmt.Println("Testing connection (Ping)...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	fmt.Println("✅ Ping successful")

	fmt.Println("Getting health status...")
	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Println("✅ Health Check Results:")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 13)
	PrintKeyValue("Response Time", status.ResponseTime.String(), 13)
	fmt.Println()

	fmt.Println("📊 Connection Pool Statistics:")
	PrintKeyValue("Max Conns", fmt.Sprintf("%d", status.Stats.MaxConns), 13)
	PrintKeyValue("Total Conns", fmt.Sprintf("%d", status.Stats.TotalConns), 13)
	PrintKeyValue("Idle Conns", fmt.Sprintf("%d", status.Stats.IdleConns), 13)
	PrintKeyValue("Acquire Count", fmt.Sprintf("%d", status.Stats.AcquireCount), 13)

	fmt.Println("\n✅ All tests passed!")
	return nil
}

// maskPassword hides the credential part of the database URL for display
func maskPassword(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
