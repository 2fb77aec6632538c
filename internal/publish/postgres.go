package publish

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samutus/warframe-market-collector/internal/analytics"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// Mirror replicates the published tables into Postgres for SQL
// consumers. The pipeline never reads its own state back from here;
// the CSV tables stay the source of truth.
type Mirror struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewMirror creates a new Mirror instance.
func NewMirror(db *pgxpool.Pool, log *logger.Logger) *Mirror {
	return &Mirror{
		db:     db,
		logger: log.WithField("module", "publish"),
	}
}

// EnsureSchema creates the analytics schema and tables when missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS analytics`,
		`
		CREATE TABLE IF NOT EXISTS analytics.sets_index (
			set_url TEXT NOT NULL,
			platform TEXT NOT NULL,
			latest_date DATE NOT NULL,
			set_sell_med DOUBLE PRECISION,
			parts_cost_buy DOUBLE PRECISION,
			margin DOUBLE PRECISION,
			roi_pct DOUBLE PRECISION,
			buy_depth_med DOUBLE PRECISION,
			min_part_eff_depth DOUBLE PRECISION,
			kpi_daily DOUBLE PRECISION,
			kpi_30d_avg DOUBLE PRECISION,
			PRIMARY KEY (set_url, platform)
		)`,
		`
		CREATE TABLE IF NOT EXISTS analytics.set_timeseries (
			set_url TEXT NOT NULL,
			platform TEXT NOT NULL,
			date DATE NOT NULL,
			sell_med DOUBLE PRECISION,
			parts_cost_buy DOUBLE PRECISION,
			margin DOUBLE PRECISION,
			roi_pct DOUBLE PRECISION,
			buy_depth_med DOUBLE PRECISION,
			min_part_eff_depth DOUBLE PRECISION,
			kpi_daily_potential DOUBLE PRECISION,
			PRIMARY KEY (set_url, platform, date)
		)`,
		`
		CREATE TABLE IF NOT EXISTS analytics.parts_latest (
			set_url TEXT NOT NULL,
			platform TEXT NOT NULL,
			part_url TEXT NOT NULL,
			quantity_for_set INT NOT NULL,
			unit_cost_latest DOUBLE PRECISION,
			unit_cost_source TEXT,
			buy_med_latest DOUBLE PRECISION,
			sell_med_latest DOUBLE PRECISION,
			sell_depth_med_latest DOUBLE PRECISION,
			latest_date_part DATE,
			PRIMARY KEY (set_url, platform, part_url)
		)`,
	}

	for _, stmt := range statements {
		if _, err := m.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure analytics schema: %w", err)
		}
	}
	return nil
}

// Replace swaps the mirrored tables for the new dataset in a single
// transaction, so SQL readers see either the old run or the new one.
func (m *Mirror) Replace(ctx context.Context, ds Dataset) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`TRUNCATE analytics.sets_index, analytics.set_timeseries, analytics.parts_latest`,
	); err != nil {
		return fmt.Errorf("truncate analytics tables: %w", err)
	}

	indexQuery := `
		INSERT INTO analytics.sets_index (
			set_url, platform, latest_date, set_sell_med, parts_cost_buy,
			margin, roi_pct, buy_depth_med, min_part_eff_depth,
			kpi_daily, kpi_30d_avg
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, row := range ds.Index {
		_, err := tx.Exec(ctx, indexQuery,
			row.SetURL, row.Platform, row.Date,
			nullFloat(row.SellMed), nullFloat(row.PartsCostBuy),
			nullFloat(row.Margin), nullFloat(row.ROIPct),
			nullFloat(row.BuyDepthMed), nullFloat(row.MinPartEffDepth),
			nullFloat(row.KPIDaily), nullFloat(row.KPI30dAvg),
		)
		if err != nil {
			return fmt.Errorf("insert index row for %s: %w", row.SetURL, err)
		}
	}

	timeseriesQuery := `
		INSERT INTO analytics.set_timeseries (
			set_url, platform, date, sell_med, parts_cost_buy, margin,
			roi_pct, buy_depth_med, min_part_eff_depth, kpi_daily_potential
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, rec := range ds.Daily {
		if !rec.Complete {
			continue
		}
		_, err := tx.Exec(ctx, timeseriesQuery,
			rec.SetURL, rec.Platform, rec.Date,
			nullFloat(rec.SellMed), nullFloat(rec.PartsCostBuy),
			nullFloat(rec.Margin), nullFloat(rec.ROIPct),
			nullFloat(rec.BuyDepthMed), nullFloat(rec.MinPartEffDepth),
			nullFloat(rec.KPIDaily),
		)
		if err != nil {
			return fmt.Errorf("insert timeseries row for %s: %w", rec.SetURL, err)
		}
	}

	partsQuery := `
		INSERT INTO analytics.parts_latest (
			set_url, platform, part_url, quantity_for_set,
			unit_cost_latest, unit_cost_source, buy_med_latest,
			sell_med_latest, sell_depth_med_latest, latest_date_part
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, part := range ds.Parts {
		_, err := tx.Exec(ctx, partsQuery,
			part.SetURL, part.Platform, part.PartURL, part.Quantity,
			nullUnitCost(part), nullSource(part),
			nullFloat(part.BuyMed), nullFloat(part.SellMed),
			nullFloat(part.SellDepthMed), nullDate(part.Date),
		)
		if err != nil {
			return fmt.Errorf("insert part row for %s/%s: %w", part.SetURL, part.PartURL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"index_rows": len(ds.Index),
		"part_rows":  len(ds.Parts),
	}).Info("Analytics tables mirrored to Postgres")

	return nil
}

// nullFloat maps an unknown value to SQL NULL; the mirror follows the
// empty-cell policy of the CSV tables.
func nullFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullUnitCost(p analytics.PartLatest) interface{} {
	if !p.HasData {
		return nil
	}
	return p.UnitCost.Value
}

func nullSource(p analytics.PartLatest) interface{} {
	if !p.HasData {
		return nil
	}
	return string(p.UnitCost.Source)
}
