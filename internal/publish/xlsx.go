package publish

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook writes the dataset as an XLSX workbook for analysts:
// one sheet per published table plus the reconciliation divergences.
// Unlike the CSV tables, the index and timeseries sheets also carry
// the normalized KPI score and the legacy opportunity score.
func WriteWorkbook(path string, ds Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "SetsIndex"); err != nil {
		return fmt.Errorf("name index sheet: %w", err)
	}

	indexRows := make([][]interface{}, 0, len(ds.Index))
	for _, row := range ds.Index {
		indexRows = append(indexRows, []interface{}{
			row.SetURL, row.Platform, formatDate(row.Date),
			cellFloat(row.SellMed), cellFloat(row.PartsCostBuy),
			cellFloat(row.Margin), cellFloat(row.ROIPct),
			cellFloat(row.BuyDepthMed), cellFloat(row.MinPartEffDepth),
			cellFloat(row.KPIDaily), cellFloat(row.KPI30dAvg),
			cellFloat(row.KPIScore), cellFloat(row.OpportunityScore),
		})
	}
	indexSheetHeader := append(append([]string{}, indexHeader...), "kpi_score", "opportunity_score")
	if err := writeSheet(f, "SetsIndex", indexSheetHeader, indexRows); err != nil {
		return err
	}

	tsRows := make([][]interface{}, 0, len(ds.Daily))
	for _, rec := range ds.Daily {
		if !rec.Complete {
			continue
		}
		tsRows = append(tsRows, []interface{}{
			rec.SetURL, rec.Platform, formatDate(rec.Date),
			cellFloat(rec.SellMed), cellFloat(rec.PartsCostBuy),
			cellFloat(rec.Margin), cellFloat(rec.ROIPct),
			cellFloat(rec.BuyDepthMed), cellFloat(rec.MinPartEffDepth),
			cellFloat(rec.KPIDaily), cellFloat(rec.KPIScore),
		})
	}
	tsHeader := []string{
		"set_url", "platform", "date", "sell_med", "parts_cost_buy",
		"margin", "roi_pct", "buy_depth_med", "min_part_eff_depth",
		"kpi_daily_potential", "kpi_score",
	}
	if err := writeSheet(f, "Timeseries", tsHeader, tsRows); err != nil {
		return err
	}

	partRows := make([][]interface{}, 0, len(ds.Parts))
	for _, part := range ds.Parts {
		r := []interface{}{
			part.SetURL, part.Platform, part.PartURL, part.Quantity,
			nil, nil, nil, nil, nil, nil,
		}
		if part.HasData {
			r[4] = part.UnitCost.Value
			r[5] = string(part.UnitCost.Source)
			r[6] = cellFloat(part.BuyMed)
			r[7] = cellFloat(part.SellMed)
			r[8] = cellFloat(part.SellDepthMed)
			r[9] = formatDate(part.Date)
		}
		partRows = append(partRows, r)
	}
	if err := writeSheet(f, "PartsLatest", partsHeader, partRows); err != nil {
		return err
	}

	divRows := make([][]interface{}, 0, len(ds.Divergences))
	for _, d := range ds.Divergences {
		divRows = append(divRows, []interface{}{
			d.SetURL, d.Platform, cellFloat(d.ModelCost),
			cellFloat(d.LatestCost), cellFloat(d.DeltaPct),
		})
	}
	divHeader := []string{"set_url", "platform", "model_cost", "latest_cost", "delta_pct"}
	if err := writeSheet(f, "Divergences", divHeader, divRows); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]interface{}) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &headerCells); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell for %s row %d: %w", name, i, err)
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i, err)
		}
	}
	return nil
}

// cellFloat maps unknown values to empty workbook cells; Excel has no
// NaN representation.
func cellFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}
