package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/httputil"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect [stage]",
	Short: "Run a collection pass",
	Long: `Runs one collection pass against warframe.market.

Stages:
  eligibility  - daily screen: list items, check weekly volume, save
                 eligible.json and the 48h statistics partition
  snapshot     - order book snapshots for the eligible items, plus a
                 component refresh for the sets among them
  all          - eligibility followed by snapshot

Example:
  go run ./cmd/wfm collect eligibility
  go run ./cmd/wfm collect snapshot
  go run ./cmd/wfm collect all`,
	Args: cobra.ExactArgs(1),
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	stage := args[0]

	fmt.Println("=== Warframe Market Collector ===")
	fmt.Printf("Stage: %s\n\n", stage)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	httpClient := httputil.New(cfg, log)
	client := market.NewClient(cfg, httpClient, log)
	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	col := pipeline.NewCollector(cfg, client, store, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch stage {
	case "eligibility":
		res, err := col.RunDaily(ctx)
		if err != nil {
			return err
		}
		printDailyResult(res)
	case "snapshot":
		res, err := col.RunSnapshots(ctx)
		if err != nil {
			return err
		}
		printSnapshotResult(res)
	case "all":
		daily, snaps, err := col.RunAll(ctx)
		if err != nil {
			return err
		}
		printDailyResult(daily)
		fmt.Println()
		printSnapshotResult(snaps)
	default:
		return fmt.Errorf("unknown stage: %s (valid: eligibility, snapshot, all)", stage)
	}

	fmt.Println()
	PrintSuccess("Collection pass completed")
	return nil
}

func printDailyResult(res pipeline.DailyResult) {
	fmt.Println("Eligibility screen:")
	PrintKeyValue("Items listed", fmt.Sprintf("%d", res.ItemsListed), 12)
	PrintKeyValue("Eligible", fmt.Sprintf("%d", res.Eligible), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", res.Failed), 12)
	PrintKeyValue("Stats rows", fmt.Sprintf("%d", res.StatsRows), 12)
}

func printSnapshotResult(res pipeline.SnapshotResult) {
	fmt.Println("Order book snapshots:")
	PrintKeyValue("Eligible", fmt.Sprintf("%d", res.Eligible), 12)
	PrintKeyValue("Captured", fmt.Sprintf("%d", res.Captured), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", res.Failed), 12)
	PrintKeyValue("Components", fmt.Sprintf("%d", res.Refresh.Components), 12)
}
