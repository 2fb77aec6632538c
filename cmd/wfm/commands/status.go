package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Local data summary",
	Long: `Summarizes what is on disk: stored partition months, the
current eligibility list and the published dataset.

Example:
  go run ./cmd/wfm status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	PrintDoubleSeparator()
	fmt.Println("  Warframe Market Collector - Status")
	PrintDoubleSeparator()

	// Raw partitions
	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	months, err := store.Months()
	if err != nil {
		return fmt.Errorf("list partition months: %w", err)
	}

	fmt.Println("\n📦 Raw snapshots")
	PrintSeparator()
	PrintKeyValue("Data dir", cfg.Storage.DataDir, 12)
	PrintKeyValue("Months", fmt.Sprintf("%d", len(months)), 12)
	if len(months) > 0 {
		PrintList(months)
	}

	// Eligibility
	fmt.Println("\n🎯 Eligibility")
	PrintSeparator()
	elig, err := market.LoadEligibility(market.EligibilityPath(cfg.Storage.DataDir))
	if err != nil {
		PrintWarning("No eligibility list yet - run: wfm collect eligibility")
	} else {
		PrintKeyValue("Items", fmt.Sprintf("%d", elig.Count), 12)
		PrintKeyValue("Updated", elig.UpdatedAt.Format("2006-01-02 15:04:05 MST"), 12)
	}

	// Published dataset
	fmt.Println("\n📊 Published dataset")
	PrintSeparator()
	entries, err := publish.ReadIndex(cfg.Storage.AnalyticsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			PrintWarning("No published dataset yet - run: wfm analytics run")
			return nil
		}
		PrintError("Failed to read sets index: " + err.Error())
		return nil
	}

	PrintKeyValue("Dir", cfg.Storage.AnalyticsDir, 12)
	PrintKeyValue("Sets", fmt.Sprintf("%d", len(entries)), 12)
	fmt.Println()

	widths := []int{34, 10, 9}
	PrintTableHeader([]string{"set_url", "latest", "kpi_daily"}, widths)
	for _, e := range entries {
		kpi := "-"
		if e.KPIDaily != nil {
			kpi = fmt.Sprintf("%.0f", *e.KPIDaily)
		}
		PrintTableRow([]string{e.SetURL, e.LatestDate, kpi}, widths)
	}

	return nil
}
