package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/database"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// analyticsCmd represents the analytics command
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Analytics over the stored snapshots",
	Long: `Builds and publishes the set analytics dataset.

Example:
  go run ./cmd/wfm analytics run`,
}

// analyticsRunCmd represents the run subcommand
var analyticsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Aggregate, score and publish the dataset",
	Long: `Loads the stored order book snapshots, aggregates them into
daily per-set rows, scores them and replaces the published tables.

When DATABASE_URL is set the tables are also mirrored to Postgres
after the CSVs are written.

Example:
  go run ./cmd/wfm analytics run`,
	RunE: runAnalytics,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsRunCmd)
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Analytics ===")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	publisher := publish.NewPublisher(cfg.Storage.AnalyticsDir, log)

	var mirror *publish.Mirror
	if cfg.Database.Enabled() {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		mirror = publish.NewMirror(db.Pool, log)
		fmt.Println("Postgres mirror enabled")
	}

	runner := pipeline.NewAnalytics(cfg, store, publisher, mirror, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Published dataset:")
	PrintKeyValue("Sets", fmt.Sprintf("%d", res.Sets), 16)
	PrintKeyValue("Timeseries files", fmt.Sprintf("%d", res.Publish.TimeseriesFiles), 16)
	PrintKeyValue("Part rows", fmt.Sprintf("%d", res.Publish.PartRows), 16)
	PrintKeyValue("Divergences", fmt.Sprintf("%d", res.Divergences), 16)
	PrintKeyValue("Mirrored", fmt.Sprintf("%v", res.Mirrored), 16)

	fmt.Println()
	PrintSuccess("Analytics run completed")
	return nil
}
