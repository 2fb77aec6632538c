package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/internal/market"
)

// Partition file prefixes under data/YYYY-MM/.
const (
	orderbookPrefix  = "orderbook"
	componentsPrefix = "set_components"
	statsPrefix      = "stats48h"
)

var (
	orderbookHeader  = []string{"item_url", "ts", "top_buy_avg", "buy_count", "top_sell_avg", "sell_count", "platform", "weekly_volume_est"}
	componentsHeader = []string{"set_url", "part_url", "quantity_for_set"}
	statsHeader      = []string{"item_url", "ts_bucket", "volume", "min", "max", "avg", "median", "platform"}
)

// StatsRow is one stored 48-hour statistics bucket.
type StatsRow struct {
	ItemURL  string
	TsBucket string
	Volume   float64
	Min      float64
	Max      float64
	Avg      float64
	Median   float64
	Platform string
}

// formatFloat renders NaN as an empty cell. Consumers treat empty as
// unknown, never as zero.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseFloatCell maps an empty cell back to NaN.
func parseFloatCell(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// headerIndex maps column names to positions so partitions written with
// extra or reordered columns still load.
type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func (h headerIndex) cell(record []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func encodeObservation(o market.OrderSnapshot) []string {
	return []string{
		o.ItemURL,
		o.Timestamp.UTC().Format(time.RFC3339),
		formatFloat(o.TopBuyAvg),
		strconv.Itoa(o.BuyCount),
		formatFloat(o.TopSellAvg),
		strconv.Itoa(o.SellCount),
		o.Platform,
		formatFloat(o.WeeklyVolume),
	}
}

func decodeObservation(idx headerIndex, record []string) (market.OrderSnapshot, error) {
	var o market.OrderSnapshot

	o.ItemURL = idx.cell(record, "item_url")
	if o.ItemURL == "" {
		return o, fmt.Errorf("missing item_url")
	}

	ts, err := time.Parse(time.RFC3339, idx.cell(record, "ts"))
	if err != nil {
		return o, fmt.Errorf("parse ts: %w", err)
	}
	o.Timestamp = ts.UTC()

	o.Platform = idx.cell(record, "platform")
	if o.Platform == "" {
		o.Platform = "pc"
	}

	if o.TopBuyAvg, err = parseFloatCell(idx.cell(record, "top_buy_avg")); err != nil {
		return o, fmt.Errorf("parse top_buy_avg: %w", err)
	}
	if o.TopSellAvg, err = parseFloatCell(idx.cell(record, "top_sell_avg")); err != nil {
		return o, fmt.Errorf("parse top_sell_avg: %w", err)
	}
	if o.BuyCount, err = strconv.Atoi(idx.cell(record, "buy_count")); err != nil {
		return o, fmt.Errorf("parse buy_count: %w", err)
	}
	if o.SellCount, err = strconv.Atoi(idx.cell(record, "sell_count")); err != nil {
		return o, fmt.Errorf("parse sell_count: %w", err)
	}
	if o.WeeklyVolume, err = parseFloatCell(idx.cell(record, "weekly_volume_est")); err != nil {
		return o, fmt.Errorf("parse weekly_volume_est: %w", err)
	}

	return o, nil
}

func encodeComponent(c catalog.Component) []string {
	return []string{c.SetURL, c.PartURL, strconv.Itoa(c.Quantity)}
}

func decodeComponent(idx headerIndex, record []string) (catalog.Component, error) {
	var c catalog.Component

	c.SetURL = idx.cell(record, "set_url")
	c.PartURL = idx.cell(record, "part_url")
	if c.SetURL == "" || c.PartURL == "" {
		return c, fmt.Errorf("missing set_url or part_url")
	}

	qty := idx.cell(record, "quantity_for_set")
	if qty == "" {
		c.Quantity = 1
		return c, nil
	}

	n, err := strconv.Atoi(qty)
	if err != nil {
		return c, fmt.Errorf("parse quantity_for_set: %w", err)
	}
	c.Quantity = n
	return c, nil
}

func encodeStatsRow(r StatsRow) []string {
	return []string{
		r.ItemURL,
		r.TsBucket,
		formatFloat(r.Volume),
		formatFloat(r.Min),
		formatFloat(r.Max),
		formatFloat(r.Avg),
		formatFloat(r.Median),
		r.Platform,
	}
}

func decodeStatsRow(idx headerIndex, record []string) (StatsRow, error) {
	var r StatsRow

	r.ItemURL = idx.cell(record, "item_url")
	r.TsBucket = idx.cell(record, "ts_bucket")
	if r.ItemURL == "" || r.TsBucket == "" {
		return r, fmt.Errorf("missing item_url or ts_bucket")
	}

	r.Platform = idx.cell(record, "platform")
	if r.Platform == "" {
		r.Platform = "pc"
	}

	var err error
	if r.Volume, err = parseFloatCell(idx.cell(record, "volume")); err != nil {
		return r, fmt.Errorf("parse volume: %w", err)
	}
	if r.Min, err = parseFloatCell(idx.cell(record, "min")); err != nil {
		return r, fmt.Errorf("parse min: %w", err)
	}
	if r.Max, err = parseFloatCell(idx.cell(record, "max")); err != nil {
		return r, fmt.Errorf("parse max: %w", err)
	}
	if r.Avg, err = parseFloatCell(idx.cell(record, "avg")); err != nil {
		return r, fmt.Errorf("parse avg: %w", err)
	}
	if r.Median, err = parseFloatCell(idx.cell(record, "median")); err != nil {
		return r, fmt.Errorf("parse median: %w", err)
	}

	return r, nil
}
