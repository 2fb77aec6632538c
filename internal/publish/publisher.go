// Package publish writes the analytics dataset to its consumers: the
// CSV tables the dashboard reads, an optional Postgres mirror, and an
// analyst XLSX workbook.
package publish

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samutus/warframe-market-collector/internal/analytics"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// Dataset is the full output of one analytics run. The CSV tables
// project a subset of these fields; the workbook and the mirror may
// carry more.
type Dataset struct {
	Index       []analytics.SetIndexRow
	Daily       []analytics.SetDaily
	Parts       []analytics.PartLatest
	Divergences []analytics.Divergence
}

// Result tallies what a publish pass wrote.
type Result struct {
	IndexRows       int
	TimeseriesFiles int
	TimeseriesRows  int
	PartRows        int
	StaleRemoved    int
}

const (
	indexFile     = "sets_index.csv"
	partsFile     = "parts_latest_by_set.csv"
	timeseriesDir = "timeseries"
)

var (
	indexHeader = []string{
		"set_url", "platform", "latest_date", "set_sell_med",
		"parts_cost_buy", "margin", "roi_pct", "buy_depth_med",
		"min_part_eff_depth", "kpi_daily", "kpi_30d_avg",
	}
	timeseriesHeader = []string{
		"date", "sell_med", "parts_cost_buy", "margin", "roi_pct",
		"buy_depth_med", "min_part_eff_depth", "kpi_daily_potential",
	}
	partsHeader = []string{
		"set_url", "platform", "part_url", "quantity_for_set",
		"unit_cost_latest", "unit_cost_source", "buy_med_latest",
		"sell_med_latest", "sell_depth_med_latest", "latest_date_part",
	}
)

// Publisher owns the analytics output directory. Every table is
// replaced wholesale on each run, temp-file first, so a reader never
// observes a half-written dataset.
type Publisher struct {
	analyticsDir string
	logger       *logger.Logger
}

// NewPublisher creates a new Publisher instance.
func NewPublisher(analyticsDir string, log *logger.Logger) *Publisher {
	return &Publisher{
		analyticsDir: analyticsDir,
		logger:       log.WithField("module", "publish"),
	}
}

// Dir returns the output directory the publisher writes into.
func (p *Publisher) Dir() string {
	return p.analyticsDir
}

// WriteCSV replaces the three published tables under the analytics
// directory: sets_index.csv, timeseries/<set>__set.csv per set, and
// parts_latest_by_set.csv. Timeseries files for sets no longer in the
// dataset are removed. Unknown values are written as empty cells,
// never as zero.
func (p *Publisher) WriteCSV(ds Dataset) (Result, error) {
	var res Result

	tsDir := filepath.Join(p.analyticsDir, timeseriesDir)
	if err := os.MkdirAll(tsDir, 0o755); err != nil {
		return res, fmt.Errorf("create analytics dir: %w", err)
	}

	if err := p.writeIndex(ds.Index); err != nil {
		return res, err
	}
	res.IndexRows = len(ds.Index)

	written, rows, err := p.writeTimeseries(tsDir, ds.Daily)
	if err != nil {
		return res, err
	}
	res.TimeseriesFiles = len(written)
	res.TimeseriesRows = rows

	removed, err := p.sweepStale(tsDir, written)
	if err != nil {
		return res, err
	}
	res.StaleRemoved = removed

	if err := p.writeParts(ds.Parts); err != nil {
		return res, err
	}
	res.PartRows = len(ds.Parts)

	p.logger.WithFields(map[string]interface{}{
		"index_rows":       res.IndexRows,
		"timeseries_files": res.TimeseriesFiles,
		"part_rows":        res.PartRows,
		"stale_removed":    res.StaleRemoved,
	}).Info("Analytics tables published")

	return res, nil
}

func (p *Publisher) writeIndex(index []analytics.SetIndexRow) error {
	records := make([][]string, 0, len(index))
	for _, row := range index {
		records = append(records, []string{
			row.SetURL,
			row.Platform,
			formatDate(row.Date),
			formatFloat(row.SellMed),
			formatFloat(row.PartsCostBuy),
			formatFloat(row.Margin),
			formatFloat(row.ROIPct),
			formatFloat(row.BuyDepthMed),
			formatFloat(row.MinPartEffDepth),
			formatFloat(row.KPIDaily),
			formatFloat(row.KPI30dAvg),
		})
	}

	path := filepath.Join(p.analyticsDir, indexFile)
	if err := writeTableAtomic(path, indexHeader, records); err != nil {
		return fmt.Errorf("publish sets index: %w", err)
	}
	return nil
}

// writeTimeseries writes one file per set holding its complete days
// only, and reports which file names now belong to the dataset.
func (p *Publisher) writeTimeseries(tsDir string, daily []analytics.SetDaily) (map[string]bool, int, error) {
	bySet := make(map[string][]analytics.SetDaily)
	for _, rec := range daily {
		if !rec.Complete {
			continue
		}
		bySet[rec.SetURL] = append(bySet[rec.SetURL], rec)
	}

	written := make(map[string]bool, len(bySet))
	rows := 0
	for setURL, recs := range bySet {
		records := make([][]string, 0, len(recs))
		for _, rec := range recs {
			records = append(records, []string{
				formatDate(rec.Date),
				formatFloat(rec.SellMed),
				formatFloat(rec.PartsCostBuy),
				formatFloat(rec.Margin),
				formatFloat(rec.ROIPct),
				formatFloat(rec.BuyDepthMed),
				formatFloat(rec.MinPartEffDepth),
				formatFloat(rec.KPIDaily),
			})
		}

		name := timeseriesFileName(setURL)
		if err := writeTableAtomic(filepath.Join(tsDir, name), timeseriesHeader, records); err != nil {
			return nil, 0, fmt.Errorf("publish timeseries for %s: %w", setURL, err)
		}
		written[name] = true
		rows += len(records)
	}

	return written, rows, nil
}

// sweepStale removes timeseries files left over from sets that fell
// out of the dataset, so the directory always mirrors the index.
func (p *Publisher) sweepStale(tsDir string, written map[string]bool) (int, error) {
	entries, err := os.ReadDir(tsDir)
	if err != nil {
		return 0, fmt.Errorf("read timeseries dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") || written[name] {
			continue
		}
		if err := os.Remove(filepath.Join(tsDir, name)); err != nil {
			return removed, fmt.Errorf("remove stale timeseries %s: %w", name, err)
		}
		p.logger.WithField("file", name).Debug("Removed stale timeseries file")
		removed++
	}

	return removed, nil
}

func (p *Publisher) writeParts(parts []analytics.PartLatest) error {
	records := make([][]string, 0, len(parts))
	for _, part := range parts {
		rec := []string{
			part.SetURL,
			part.Platform,
			part.PartURL,
			strconv.Itoa(part.Quantity),
			"", "", "", "", "", "",
		}
		if part.HasData {
			rec[4] = formatFloat(part.UnitCost.Value)
			rec[5] = string(part.UnitCost.Source)
			rec[6] = formatFloat(part.BuyMed)
			rec[7] = formatFloat(part.SellMed)
			rec[8] = formatFloat(part.SellDepthMed)
			rec[9] = formatDate(part.Date)
		}
		records = append(records, rec)
	}

	path := filepath.Join(p.analyticsDir, partsFile)
	if err := writeTableAtomic(path, partsHeader, records); err != nil {
		return fmt.Errorf("publish parts latest: %w", err)
	}
	return nil
}

func timeseriesFileName(setURL string) string {
	return setURL + "__set.csv"
}

// formatFloat renders a value for a published cell; unknown is an
// empty cell, never zero.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func writeTableAtomic(path string, header []string, records [][]string) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write header: %w", err)
	}
	// WriteAll flushes and surfaces the first write error.
	if err := w.WriteAll(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write rows: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync table: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close table: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename table: %w", err)
	}
	return nil
}
