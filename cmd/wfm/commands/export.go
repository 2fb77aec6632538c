package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/pipeline"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the analyst workbook",
	Long: `Builds the analytics dataset from the stored snapshots and
writes it as an XLSX workbook, one sheet per published table.

Example:
  go run ./cmd/wfm export
  go run ./cmd/wfm export --out report.xlsx`,
	RunE: runExport,
}

var (
	exportOut string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	// Flags
	exportCmd.Flags().StringVar(&exportOut, "out", "report.xlsx", "output workbook path")
}

func runExport(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Export ===")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	publisher := publish.NewPublisher(cfg.Storage.AnalyticsDir, log)
	runner := pipeline.NewAnalytics(cfg, store, publisher, nil, log)

	ds, err := runner.BuildDataset()
	if err != nil {
		return err
	}

	if err := publish.WriteWorkbook(exportOut, ds); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	PrintKeyValue("Sets", fmt.Sprintf("%d", len(ds.Index)), 10)
	PrintKeyValue("Daily rows", fmt.Sprintf("%d", len(ds.Daily)), 10)
	PrintKeyValue("Part rows", fmt.Sprintf("%d", len(ds.Parts)), 10)
	fmt.Println()
	PrintSuccess("Workbook written to " + exportOut)
	return nil
}
