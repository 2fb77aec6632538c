package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/httputil"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Set component catalog",
	Long: `Inspects or refreshes the set to parts component catalog.

Subcommands:
  refresh - re-fetch component lists for the eligible sets
  show    - print the stored catalog

Example:
  go run ./cmd/wfm catalog refresh
  go run ./cmd/wfm catalog show
  go run ./cmd/wfm catalog show ash_prime_set`,
}

// catalogRefreshCmd represents the refresh subcommand
var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-fetch component lists for the eligible sets",
	RunE:  runCatalogRefresh,
}

// catalogShowCmd represents the show subcommand
var catalogShowCmd = &cobra.Command{
	Use:   "show [set_url]",
	Short: "Print the stored catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

func runCatalogRefresh(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Warframe Market Catalog Refresh ===")
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	elig, err := market.LoadEligibility(market.EligibilityPath(cfg.Storage.DataDir))
	if err != nil {
		return fmt.Errorf("load eligibility: %w", err)
	}

	setURLs := make([]string, 0, len(elig.Items))
	for _, item := range elig.Items {
		if market.IsSetURL(item.URL) {
			setURLs = append(setURLs, item.URL)
		}
	}
	if len(setURLs) == 0 {
		PrintWarning("No eligible sets to refresh")
		return nil
	}

	httpClient := httputil.New(cfg, log)
	client := market.NewClient(cfg, httpClient, log)
	refresher := catalog.NewRefresher(client, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, res, err := refresher.Refresh(ctx, setURLs)
	if err != nil {
		return fmt.Errorf("refresh set components: %w", err)
	}

	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	if _, err := store.RecordComponents(components); err != nil {
		return fmt.Errorf("record components: %w", err)
	}

	PrintKeyValue("Sets fetched", fmt.Sprintf("%d", res.Sets), 12)
	PrintKeyValue("Components", fmt.Sprintf("%d", res.Components), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", res.Failed), 12)
	fmt.Println()
	PrintSuccess("Catalog refresh completed")
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	components, _, err := store.LoadComponents()
	if err != nil {
		return fmt.Errorf("load components: %w", err)
	}
	cat, err := catalog.New(components)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	if len(args) == 1 {
		setURL := args[0]
		if !cat.Has(setURL) {
			return fmt.Errorf("unknown set: %s", setURL)
		}

		fmt.Printf("%s (%d parts per set)\n\n", setURL, cat.TotalQuantity(setURL))
		PrintTableHeader([]string{"part_url", "quantity"}, []int{40, 8})
		for _, part := range cat.Parts(setURL) {
			PrintTableRow([]string{part.PartURL, fmt.Sprintf("%d", part.Quantity)}, []int{40, 8})
		}
		return nil
	}

	fmt.Printf("Catalog: %d sets, %d component rows\n\n", cat.NumSets(), cat.NumComponents())
	PrintTableHeader([]string{"set_url", "parts", "total_qty"}, []int{40, 6, 9})
	for _, setURL := range cat.Sets() {
		PrintTableRow([]string{
			setURL,
			fmt.Sprintf("%d", len(cat.Parts(setURL))),
			fmt.Sprintf("%d", cat.TotalQuantity(setURL)),
		}, []int{40, 6, 9})
	}
	return nil
}
