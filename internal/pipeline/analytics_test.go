package pipeline

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/internal/publish"
	"github.com/samutus/warframe-market-collector/internal/snapshot"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

func newTestAnalytics(t *testing.T) (*Analytics, *snapshot.Store, *config.Config) {
	t.Helper()

	cfg := testConfig(t, "http://unused.invalid")
	log := logger.New(cfg)
	store := snapshot.NewStore(cfg.Storage.DataDir, log)
	publisher := publish.NewPublisher(cfg.Storage.AnalyticsDir, log)

	return NewAnalytics(cfg, store, publisher, nil, log), store, cfg
}

func obs(item string, ts time.Time, buy, sell float64, buyCount, sellCount int) market.OrderSnapshot {
	return market.OrderSnapshot{
		ItemURL:      item,
		Platform:     "pc",
		Timestamp:    ts,
		TopBuyAvg:    buy,
		BuyCount:     buyCount,
		TopSellAvg:   sell,
		SellCount:    sellCount,
		WeeklyVolume: math.NaN(),
	}
}

// seedStore records two days of observations for one prime set: a
// complete day and a later day missing the chassis.
func seedStore(t *testing.T, store *snapshot.Store) {
	t.Helper()

	_, err := store.RecordComponents([]catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
		{SetURL: "ash_prime_set", PartURL: "ash_prime_chassis", Quantity: 1},
	})
	require.NoError(t, err)

	day1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	_, err = store.Record([]market.OrderSnapshot{
		obs("ash_prime_set", day1, 90, 100, 3, 2),
		obs("ash_prime_blueprint", day1, 30, 35, 5, 10),
		obs("ash_prime_chassis", day1, 20, 28, 4, 8),
		obs("ash_prime_set", day2, 91, 105, 4, 2),
		obs("ash_prime_blueprint", day2, 31, 36, 5, 9),
	})
	require.NoError(t, err)
}

func readTable(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestAnalyticsRun(t *testing.T) {
	runner, store, cfg := newTestAnalytics(t)
	seedStore(t, store)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sets)
	assert.Equal(t, 0, result.Divergences)
	assert.False(t, result.Mirrored)
	assert.Equal(t, 1, result.Publish.IndexRows)
	assert.Equal(t, 1, result.Publish.TimeseriesFiles)
	assert.Equal(t, 2, result.Publish.PartRows)

	// The complete day: cost 30+20=50, sell 100, margin 50, ROI 100%,
	// cap min(min(10,8), 3) = 3, KPI 150. The incomplete day must not
	// surface anywhere.
	index := readTable(t, filepath.Join(cfg.Storage.AnalyticsDir, "sets_index.csv"))
	require.Len(t, index, 2)
	assert.Equal(t, []string{
		"ash_prime_set", "pc", "2026-08-20", "100", "50", "50", "100", "3", "8", "150", "150",
	}, index[1])

	series := readTable(t, filepath.Join(cfg.Storage.AnalyticsDir, "timeseries", "ash_prime_set__set.csv"))
	require.Len(t, series, 2)
	assert.Equal(t, []string{"2026-08-20", "100", "50", "50", "100", "3", "8", "150"}, series[1])

	parts := readTable(t, filepath.Join(cfg.Storage.AnalyticsDir, "parts_latest_by_set.csv"))
	require.Len(t, parts, 3)
	assert.Equal(t, []string{
		"ash_prime_set", "pc", "ash_prime_blueprint", "1", "30", "BUY", "30", "35", "10", "2026-08-20",
	}, parts[1])
	assert.Equal(t, []string{
		"ash_prime_set", "pc", "ash_prime_chassis", "1", "20", "BUY", "20", "28", "8", "2026-08-20",
	}, parts[2])
}

func TestAnalyticsRunIdempotent(t *testing.T) {
	runner, store, cfg := newTestAnalytics(t)
	seedStore(t, store)

	first, err := runner.Run(context.Background())
	require.NoError(t, err)

	second, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Publish.IndexRows, second.Publish.IndexRows)

	index := readTable(t, filepath.Join(cfg.Storage.AnalyticsDir, "sets_index.csv"))
	assert.Len(t, index, 2)
}

func TestBuildDatasetEmptyStore(t *testing.T) {
	runner, _, _ := newTestAnalytics(t)

	_, err := runner.BuildDataset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no order book observations")
}

func TestBuildDatasetWithoutComponents(t *testing.T) {
	runner, store, _ := newTestAnalytics(t)

	_, err := store.Record([]market.OrderSnapshot{
		obs("ash_prime_set", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), 90, 100, 3, 2),
	})
	require.NoError(t, err)

	_, err = runner.BuildDataset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build catalog")
}

func TestBuildDatasetShape(t *testing.T) {
	runner, store, _ := newTestAnalytics(t)
	seedStore(t, store)

	dataset, err := runner.BuildDataset()
	require.NoError(t, err)

	require.Len(t, dataset.Index, 1)
	assert.Equal(t, "ash_prime_set", dataset.Index[0].SetURL)
	assert.True(t, dataset.Index[0].Complete)
	assert.InDelta(t, 150.0, dataset.Index[0].KPIDaily, 1e-9)

	// Both days scored, only one complete
	require.Len(t, dataset.Daily, 2)
	complete := 0
	for _, d := range dataset.Daily {
		if d.Complete {
			complete++
		}
	}
	assert.Equal(t, 1, complete)

	assert.Len(t, dataset.Parts, 2)
	assert.Empty(t, dataset.Divergences)
}
