package snapshot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &config.Config{LogLevel: "error", LogFormat: "json"}
	return NewStore(t.TempDir(), logger.New(cfg))
}

func obsAt(item string, ts time.Time, buy, sell float64) market.OrderSnapshot {
	return market.OrderSnapshot{
		ItemURL:      item,
		Platform:     "pc",
		Timestamp:    ts,
		TopBuyAvg:    buy,
		BuyCount:     4,
		TopSellAvg:   sell,
		SellCount:    6,
		WeeklyVolume: math.NaN(),
	}
}

func TestRecordFreshPartition(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	results, err := s.Record([]market.OrderSnapshot{
		obsAt("ash_prime_set", ts, 95, 110),
		obsAt("ash_prime_blueprint", ts, math.NaN(), 12.5),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, filepath.Join(s.dataDir, "2026-08", "orderbook_2026-08.csv"), res.Partition)
	assert.Equal(t, 0, res.RowsPrior)
	assert.Equal(t, 2, res.RowsNew)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 0, res.DuplicatesDropped)
	assert.False(t, res.RollbackAvailable)

	loaded, lr, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, lr.Files)
	require.Len(t, loaded, 2)

	// NaN cells survive the round trip as NaN, not zero
	assert.Equal(t, "ash_prime_blueprint", loaded[1].ItemURL)
	assert.True(t, math.IsNaN(loaded[1].TopBuyAvg))
	assert.Equal(t, 12.5, loaded[1].TopSellAvg)
	assert.True(t, loaded[1].Timestamp.Equal(ts))
}

func TestRecordRotationAndFirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ts1 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(6 * time.Hour)

	_, err := s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts1, 95, 110)})
	require.NoError(t, err)

	// Same key, different payload: the stored row must stay authoritative
	results, err := s.Record([]market.OrderSnapshot{
		obsAt("ash_prime_set", ts1, 999, 999),
		obsAt("ash_prime_set", ts2, 96, 111),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, 1, res.RowsPrior)
	assert.Equal(t, 2, res.RowsNew)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 1, res.DuplicatesDropped)
	assert.True(t, res.RollbackAvailable)

	// Rollback file holds the superseded partition
	_, rollbackRows, _, err := readRecords(filepath.Join(s.dataDir, "2026-08", "orderbook_2026-08_old.csv"))
	require.NoError(t, err)
	assert.Len(t, rollbackRows, 1)

	loaded, _, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 95.0, loaded[0].TopBuyAvg, "first write wins on duplicate key")
	assert.Equal(t, 96.0, loaded[1].TopBuyAvg)
}

func TestRecordDedupWithinCycle(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	results, err := s.Record([]market.OrderSnapshot{
		obsAt("ash_prime_set", ts, 95, 110),
		obsAt("ash_prime_set", ts, 90, 100),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, results[0].RowsWritten)
	assert.Equal(t, 1, results[0].DuplicatesDropped)

	loaded, _, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 95.0, loaded[0].TopBuyAvg)
}

func TestRecordMonthBoundary(t *testing.T) {
	s := newTestStore(t)

	results, err := s.Record([]market.OrderSnapshot{
		obsAt("ash_prime_set", time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC), 95, 110),
		obsAt("ash_prime_set", time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), 96, 111),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Contains(t, results[0].Partition, "orderbook_2026-07.csv")
	assert.Contains(t, results[1].Partition, "orderbook_2026-08.csv")

	months, err := s.Months()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-07", "2026-08"}, months)
}

func TestCrashWindowRecovery(t *testing.T) {
	s := newTestStore(t)
	ts1 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(6 * time.Hour)

	_, err := s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts1, 95, 110)})
	require.NoError(t, err)

	// Simulate a crash between rename-old and write-new: the primary is
	// gone, only the rollback remains.
	dir := filepath.Join(s.dataDir, "2026-08")
	primary := filepath.Join(dir, "orderbook_2026-08.csv")
	rollback := filepath.Join(dir, "orderbook_2026-08_old.csv")
	require.NoError(t, os.Rename(primary, rollback))

	// The rollback is intact and readable
	_, rows, _, err := readRecords(rollback)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// The next cycle recovers the rolled-back rows instead of dropping them
	results, err := s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts2, 96, 111)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.Recovered)
	assert.True(t, res.RollbackAvailable)
	assert.Equal(t, 1, res.RowsPrior)
	assert.Equal(t, 2, res.RowsWritten)

	loaded, _, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestNoTempFileLeftBehind(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)

	_, err := s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts, 95, 110)})
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(s.dataDir, "*", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMalformedRowsSkipped(t *testing.T) {
	s := newTestStore(t)
	dir := filepath.Join(s.dataDir, "2026-08")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	partition := filepath.Join(dir, "orderbook_2026-08.csv")
	content := "item_url,ts,top_buy_avg,buy_count,top_sell_avg,sell_count,platform,weekly_volume_est\n" +
		"ash_prime_set,2026-08-25T00:00:00Z,95,4,110,6,pc,12\n" +
		"bad_row,not-a-timestamp,95,4,110,6,pc,12\n" +
		"ash_prime_blueprint,2026-08-25T00:00:00Z,abc,4,12.5,6,pc,\n"
	require.NoError(t, os.WriteFile(partition, []byte(content), 0o644))

	loaded, lr, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 2, lr.MalformedSkipped)
	require.Len(t, loaded, 1)
	assert.Equal(t, "ash_prime_set", loaded[0].ItemURL)

	// Rotation carries the good row forward and drops the bad ones
	results, err := s.Record([]market.OrderSnapshot{
		obsAt("valkyr_prime_set", time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC), 50, 60),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].RowsPrior)
	assert.Equal(t, 2, results[0].MalformedSkipped)
	assert.Equal(t, 2, results[0].RowsWritten)
}

func TestLoadAllSkipsRollbackFiles(t *testing.T) {
	s := newTestStore(t)
	ts1 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	_, err := s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts1, 95, 110)})
	require.NoError(t, err)
	_, err = s.Record([]market.OrderSnapshot{obsAt("ash_prime_set", ts1.Add(6*time.Hour), 96, 111)})
	require.NoError(t, err)

	// Primary has both rows, rollback has the first cycle only; the
	// load must not double-count the rollback.
	loaded, lr, err := s.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, 1, lr.Files)
	assert.Len(t, loaded, 2)
}

func TestUnwritableDataDir(t *testing.T) {
	tmp := t.TempDir()
	blocked := filepath.Join(tmp, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0o644))

	cfg := &config.Config{LogLevel: "error", LogFormat: "json"}
	s := NewStore(blocked, logger.New(cfg))

	_, err := s.Record([]market.OrderSnapshot{
		obsAt("ash_prime_set", time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC), 95, 110),
	})
	require.Error(t, err)
}

func TestRecordComponents(t *testing.T) {
	s := newTestStore(t)

	res, err := s.RecordComponents([]catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
		{SetURL: "ash_prime_set", PartURL: "ash_prime_chassis", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsWritten)

	// Re-recording the same mapping is a no-op apart from the rotation
	res, err = s.RecordComponents([]catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 1, res.DuplicatesDropped)
	assert.True(t, res.RollbackAvailable)

	comps, lr, err := s.LoadComponents()
	require.NoError(t, err)
	assert.Equal(t, 1, lr.Files)
	require.Len(t, comps, 2)
	assert.Equal(t, 1, comps[0].Quantity, "stored quantity is authoritative")
}

func TestRecordStats(t *testing.T) {
	s := newTestStore(t)

	rows := []StatsRow{
		{ItemURL: "ash_prime_set", TsBucket: "2026-08-24T00:00:00.000+00:00", Volume: 12, Min: 100, Max: 130, Avg: 114.5, Median: 112, Platform: "pc"},
		{ItemURL: "ash_prime_set", TsBucket: "2026-08-25T00:00:00.000+00:00", Volume: 9, Min: 101, Max: 128, Avg: 113.0, Median: 111, Platform: "pc"},
	}

	res, err := s.RecordStats(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsWritten)

	res, err = s.RecordStats(rows[:1])
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 1, res.DuplicatesDropped)
}
