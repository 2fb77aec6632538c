package publish

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// The read side of the published tables. The dataset server and the
// status command consume the CSVs through these, never the raw
// analytics structs, so published empty cells stay null instead of
// turning into zeros.

// IndexEntry is one sets_index row in nullable form.
type IndexEntry struct {
	SetURL          string   `json:"set_url"`
	Platform        string   `json:"platform"`
	LatestDate      string   `json:"latest_date"`
	SetSellMed      *float64 `json:"set_sell_med"`
	PartsCostBuy    *float64 `json:"parts_cost_buy"`
	Margin          *float64 `json:"margin"`
	ROIPct          *float64 `json:"roi_pct"`
	BuyDepthMed     *float64 `json:"buy_depth_med"`
	MinPartEffDepth *float64 `json:"min_part_eff_depth"`
	KPIDaily        *float64 `json:"kpi_daily"`
	KPI30dAvg       *float64 `json:"kpi_30d_avg"`
}

// TimeseriesEntry is one per-set daily row.
type TimeseriesEntry struct {
	Date              string   `json:"date"`
	SellMed           *float64 `json:"sell_med"`
	PartsCostBuy      *float64 `json:"parts_cost_buy"`
	Margin            *float64 `json:"margin"`
	ROIPct            *float64 `json:"roi_pct"`
	BuyDepthMed       *float64 `json:"buy_depth_med"`
	MinPartEffDepth   *float64 `json:"min_part_eff_depth"`
	KPIDailyPotential *float64 `json:"kpi_daily_potential"`
}

// PartEntry is one parts_latest_by_set row. UnitCostSource is empty
// for a part that had no order book data at all.
type PartEntry struct {
	SetURL             string   `json:"set_url"`
	Platform           string   `json:"platform"`
	PartURL            string   `json:"part_url"`
	QuantityForSet     int      `json:"quantity_for_set"`
	UnitCostLatest     *float64 `json:"unit_cost_latest"`
	UnitCostSource     string   `json:"unit_cost_source"`
	BuyMedLatest       *float64 `json:"buy_med_latest"`
	SellMedLatest      *float64 `json:"sell_med_latest"`
	SellDepthMedLatest *float64 `json:"sell_depth_med_latest"`
	LatestDatePart     string   `json:"latest_date_part"`
}

// IndexPath returns the location of the published sets index.
func IndexPath(analyticsDir string) string {
	return filepath.Join(analyticsDir, indexFile)
}

// ReadIndex reads the published sets index.
func ReadIndex(analyticsDir string) ([]IndexEntry, error) {
	rows, err := readTable(filepath.Join(analyticsDir, indexFile), indexHeader)
	if err != nil {
		return nil, err
	}

	out := make([]IndexEntry, 0, len(rows))
	for _, rec := range rows {
		e := IndexEntry{
			SetURL:     rec[0],
			Platform:   rec[1],
			LatestDate: rec[2],
		}
		if err := parseCells(rec[3:],
			&e.SetSellMed, &e.PartsCostBuy, &e.Margin, &e.ROIPct,
			&e.BuyDepthMed, &e.MinPartEffDepth, &e.KPIDaily, &e.KPI30dAvg,
		); err != nil {
			return nil, fmt.Errorf("parse sets index row for %s: %w", e.SetURL, err)
		}
		out = append(out, e)
	}

	return out, nil
}

// ReadTimeseries reads one set's published daily series. A missing
// file wraps os.ErrNotExist so callers can answer 404.
func ReadTimeseries(analyticsDir, setURL string) ([]TimeseriesEntry, error) {
	path := filepath.Join(analyticsDir, timeseriesDir, timeseriesFileName(setURL))
	rows, err := readTable(path, timeseriesHeader)
	if err != nil {
		return nil, err
	}

	out := make([]TimeseriesEntry, 0, len(rows))
	for _, rec := range rows {
		e := TimeseriesEntry{Date: rec[0]}
		if err := parseCells(rec[1:],
			&e.SellMed, &e.PartsCostBuy, &e.Margin, &e.ROIPct,
			&e.BuyDepthMed, &e.MinPartEffDepth, &e.KPIDailyPotential,
		); err != nil {
			return nil, fmt.Errorf("parse timeseries row for %s: %w", setURL, err)
		}
		out = append(out, e)
	}

	return out, nil
}

// ReadParts reads the published parts alignment table.
func ReadParts(analyticsDir string) ([]PartEntry, error) {
	rows, err := readTable(filepath.Join(analyticsDir, partsFile), partsHeader)
	if err != nil {
		return nil, err
	}

	out := make([]PartEntry, 0, len(rows))
	for _, rec := range rows {
		e := PartEntry{
			SetURL:         rec[0],
			Platform:       rec[1],
			PartURL:        rec[2],
			UnitCostSource: rec[5],
			LatestDatePart: rec[9],
		}
		if rec[3] != "" {
			qty, err := strconv.Atoi(rec[3])
			if err != nil {
				return nil, fmt.Errorf("parse quantity for %s/%s: %w", e.SetURL, e.PartURL, err)
			}
			e.QuantityForSet = qty
		}
		if err := parseCells([]string{rec[4], rec[6], rec[7], rec[8]},
			&e.UnitCostLatest, &e.BuyMedLatest, &e.SellMedLatest, &e.SellDepthMedLatest,
		); err != nil {
			return nil, fmt.Errorf("parse parts row for %s/%s: %w", e.SetURL, e.PartURL, err)
		}
		out = append(out, e)
	}

	return out, nil
}

// readTable reads a published CSV, verifies its header and returns the
// data rows.
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open published table: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read published table %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("published table %s has no header", filepath.Base(path))
	}
	if !equalHeader(records[0], header) {
		return nil, fmt.Errorf("published table %s has unexpected header", filepath.Base(path))
	}

	return records[1:], nil
}

func equalHeader(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// parseCells fills nullable float targets from CSV cells in order; an
// empty cell stays nil.
func parseCells(cells []string, targets ...**float64) error {
	if len(cells) != len(targets) {
		return fmt.Errorf("expected %d cells, got %d", len(targets), len(cells))
	}
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
		*targets[i] = &v
	}
	return nil
}
