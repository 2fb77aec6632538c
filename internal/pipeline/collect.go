// Package pipeline wires the collection and analytics stages into the
// batch runs the CLI and scheduler invoke.
// ⭐ SSOT: run orchestration lives in this package only
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/metrics"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// Collector orchestrates the two upstream collection cycles: the daily
// eligibility screen and the recurring order book snapshot run.
type Collector struct {
	cfg       *config.Config
	client    *market.Client
	store     *snapshot.Store
	refresher *catalog.Refresher
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewCollector creates a new Collector instance.
func NewCollector(cfg *config.Config, client *market.Client, store *snapshot.Store, log *logger.Logger) *Collector {
	return &Collector{
		cfg:       cfg,
		client:    client,
		store:     store,
		refresher: catalog.NewRefresher(client, log),
		logger:    log.WithField("module", "pipeline"),
		metrics:   metrics.Get(),
	}
}

// DailyResult tallies one eligibility screen pass.
type DailyResult struct {
	ItemsListed int
	Eligible    int
	Failed      int
	StatsRows   int
}

// SnapshotResult tallies one order book snapshot pass.
type SnapshotResult struct {
	Eligible  int
	Captured  int
	Failed    int
	Rotations []snapshot.RotationResult
	Refresh   catalog.RefreshResult
}

// statsResult carries one item's statistics fetch through the worker pool.
type statsResult struct {
	itemURL string
	volume  int
	hours48 []market.StatsBucket
	err     error
}

// snapResult carries one item's order book capture through the worker pool.
type snapResult struct {
	itemURL string
	obs     market.OrderSnapshot
	err     error
}

// RunDaily screens the full item list through the statistics endpoint,
// persists the eligibility list for the snapshot runs, and records the
// 48-hour statistics buckets for the items that cleared the threshold.
func (c *Collector) RunDaily(ctx context.Context) (DailyResult, error) {
	start := time.Now()
	result, err := c.runDaily(ctx)
	c.metrics.RecordRun("eligibility", runStatus(err), time.Since(start))
	return result, err
}

func (c *Collector) runDaily(ctx context.Context) (DailyResult, error) {
	items, err := c.client.ListItems(ctx)
	if err != nil {
		return DailyResult{}, fmt.Errorf("list items: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"item_count": len(items),
		"workers":    c.cfg.Collector.Workers,
		"min_volume": c.cfg.Collector.WeeklyMinVolume,
	}).Info("Starting eligibility screen")

	resultCh := make(chan statsResult, len(items))
	itemCh := make(chan string, len(items))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Collector.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.statsWorker(ctx, workerID, itemCh, resultCh)
		}(i)
	}

	for _, item := range items {
		itemCh <- item
	}
	close(itemCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	eligible := make([]market.EligibleItem, 0, len(items))
	hours48 := make(map[string][]market.StatsBucket, len(items))
	failed := 0
	for result := range resultCh {
		if result.err != nil {
			failed++
			continue
		}
		if result.volume <= c.cfg.Collector.WeeklyMinVolume {
			continue
		}
		eligible = append(eligible, market.EligibleItem{URL: result.itemURL, WeeklyVolume: result.volume})
		hours48[result.itemURL] = result.hours48
	}

	result := DailyResult{
		ItemsListed: len(items),
		Eligible:    len(eligible),
		Failed:      failed,
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("eligibility screen interrupted: %w", err)
	}
	// A wholesale upstream outage must not wipe a good eligibility list
	if len(items) > 0 && failed == len(items) {
		return result, fmt.Errorf("statistics fetch failed for all %d items", len(items))
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].URL < eligible[j].URL })

	elig := &market.Eligibility{
		UpdatedAt: time.Now().UTC(),
		Items:     eligible,
	}
	if err := elig.Save(market.EligibilityPath(c.cfg.Storage.DataDir)); err != nil {
		return result, fmt.Errorf("save eligibility: %w", err)
	}
	c.metrics.SetEligibleItems(len(eligible))

	statsRows := make([]snapshot.StatsRow, 0, len(eligible)*48)
	for _, it := range eligible {
		for _, b := range hours48[it.URL] {
			statsRows = append(statsRows, snapshot.StatsRow{
				ItemURL:  it.URL,
				TsBucket: b.Datetime,
				Volume:   b.Volume,
				Min:      b.MinPrice,
				Max:      b.MaxPrice,
				Avg:      b.AvgPrice,
				Median:   b.Median,
				Platform: c.cfg.Market.Platform,
			})
		}
	}
	result.StatsRows = len(statsRows)

	if len(statsRows) > 0 {
		rotation, err := c.store.RecordStats(statsRows)
		if err != nil {
			return result, fmt.Errorf("record hourly statistics: %w", err)
		}
		c.metrics.RecordRotation("stats48h", rotation.RowsWritten, rotation.DuplicatesDropped, rotation.MalformedSkipped)
	}

	c.logger.WithFields(map[string]interface{}{
		"items":      len(items),
		"eligible":   len(eligible),
		"failed":     failed,
		"stats_rows": len(statsRows),
	}).Info("Eligibility screen completed")

	return result, nil
}

// statsWorker screens items through the statistics endpoint.
func (c *Collector) statsWorker(ctx context.Context, workerID int, itemCh <-chan string, resultCh chan<- statsResult) {
	for itemURL := range itemCh {
		select {
		case <-ctx.Done():
			resultCh <- statsResult{itemURL: itemURL, err: ctx.Err()}
			return
		default:
		}

		start := time.Now()
		stats, err := c.client.FetchStatistics(ctx, itemURL)
		c.metrics.RecordUpstreamRequest("statistics", requestStatus(err), time.Since(start))
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"item_url": itemURL,
			}).Error("Failed to fetch statistics")
			c.metrics.RecordItemSkipped("eligibility")
			resultCh <- statsResult{itemURL: itemURL, err: err}
			continue
		}

		resultCh <- statsResult{
			itemURL: itemURL,
			volume:  market.SumRecentVolume(stats.Days90, market.WeeklyWindowDays),
			hours48: stats.Hours48,
		}
	}
}

// RunSnapshots captures one order book observation per eligible item,
// records them into the monthly partitions, and refreshes the component
// lists for the sets in the eligibility list.
func (c *Collector) RunSnapshots(ctx context.Context) (SnapshotResult, error) {
	start := time.Now()
	result, err := c.runSnapshots(ctx)
	c.metrics.RecordRun("snapshot", runStatus(err), time.Since(start))
	return result, err
}

func (c *Collector) runSnapshots(ctx context.Context) (SnapshotResult, error) {
	elig, err := market.LoadEligibility(market.EligibilityPath(c.cfg.Storage.DataDir))
	if err != nil {
		return SnapshotResult{}, fmt.Errorf("load eligibility: %w", err)
	}

	urls := elig.URLs()
	c.logger.WithFields(map[string]interface{}{
		"eligible": len(urls),
		"workers":  c.cfg.Collector.Workers,
	}).Info("Starting order book snapshots")

	resultCh := make(chan snapResult, len(urls))
	itemCh := make(chan string, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Collector.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.snapshotWorker(ctx, workerID, itemCh, resultCh, elig)
		}(i)
	}

	for _, url := range urls {
		itemCh <- url
	}
	close(itemCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	observations := make([]market.OrderSnapshot, 0, len(urls))
	failed := 0
	for result := range resultCh {
		if result.err != nil {
			failed++
			continue
		}
		observations = append(observations, result.obs)
	}

	result := SnapshotResult{
		Eligible: len(urls),
		Captured: len(observations),
		Failed:   failed,
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("snapshot run interrupted: %w", err)
	}

	if len(observations) == 0 {
		if failed > 0 {
			return result, fmt.Errorf("order book fetch failed for all %d items", failed)
		}
		c.logger.Warn("No eligible items to snapshot")
		return result, nil
	}

	rotations, err := c.store.Record(observations)
	if err != nil {
		return result, fmt.Errorf("record snapshots: %w", err)
	}
	result.Rotations = rotations
	for _, rot := range rotations {
		c.metrics.RecordRotation("orderbook", rot.RowsWritten, rot.DuplicatesDropped, rot.MalformedSkipped)
	}

	setURLs := make([]string, 0, len(urls))
	for _, url := range urls {
		if market.IsSetURL(url) {
			setURLs = append(setURLs, url)
		}
	}

	if len(setURLs) > 0 {
		components, refresh, err := c.refresher.Refresh(ctx, setURLs)
		if err != nil {
			return result, fmt.Errorf("refresh set components: %w", err)
		}
		result.Refresh = refresh

		if len(components) > 0 {
			rotation, err := c.store.RecordComponents(components)
			if err != nil {
				return result, fmt.Errorf("record set components: %w", err)
			}
			c.metrics.RecordRotation("components", rotation.RowsWritten, rotation.DuplicatesDropped, rotation.MalformedSkipped)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"captured": len(observations),
		"failed":   failed,
		"sets":     result.Refresh.Sets,
	}).Info("Snapshot run completed")

	return result, nil
}

// snapshotWorker captures order books and stamps the weekly volume
// estimate carried over from the eligibility pass.
func (c *Collector) snapshotWorker(ctx context.Context, workerID int, itemCh <-chan string, resultCh chan<- snapResult, elig *market.Eligibility) {
	for itemURL := range itemCh {
		select {
		case <-ctx.Done():
			resultCh <- snapResult{itemURL: itemURL, err: ctx.Err()}
			return
		default:
		}

		start := time.Now()
		obs, err := c.client.SnapshotOrders(ctx, itemURL)
		c.metrics.RecordUpstreamRequest("orders", requestStatus(err), time.Since(start))
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"worker":   workerID,
				"item_url": itemURL,
			}).Error("Failed to fetch order book")
			c.metrics.RecordItemSkipped("snapshot")
			resultCh <- snapResult{itemURL: itemURL, err: err}
			continue
		}

		if vol, ok := elig.WeeklyVolumeFor(itemURL); ok {
			obs.WeeklyVolume = float64(vol)
		}

		c.logger.WithFields(map[string]interface{}{
			"worker":   workerID,
			"item_url": itemURL,
		}).Debug("Captured order book")

		resultCh <- snapResult{itemURL: itemURL, obs: obs}
	}
}

// RunAll runs the daily eligibility screen followed by a snapshot pass.
func (c *Collector) RunAll(ctx context.Context) (DailyResult, SnapshotResult, error) {
	daily, err := c.RunDaily(ctx)
	if err != nil {
		return daily, SnapshotResult{}, err
	}

	snaps, err := c.RunSnapshots(ctx)
	return daily, snaps, err
}

func runStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func requestStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
