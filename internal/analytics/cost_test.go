package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		ROIRef:                15.0,
		ROISharpness:          0.25,
		MarginFloor:           0,
		MarginTarget:          50.0,
		ReconcileTolerancePct: 5.0,
		KPIWindowDays:         30,
		PrimeOnly:             true,
	}
}

func newTestScorer(t *testing.T, comps []catalog.Component) *Scorer {
	t.Helper()
	cat, err := catalog.New(comps)
	require.NoError(t, err)
	log := logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
	return NewScorer(cat, testAnalyticsConfig(), log)
}

func agg(item string, date time.Time, buy, sell, buyDepth, sellDepth float64) DailyAggregate {
	return DailyAggregate{
		ItemURL:      item,
		Platform:     "pc",
		Date:         date,
		BuyMed:       buy,
		SellMed:      sell,
		BuyDepthMed:  buyDepth,
		SellDepthMed: sellDepth,
	}
}

func TestEffectiveUnitCost(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name    string
		buy     float64
		sell    float64
		want    UnitCost
		wantOK  bool
	}{
		{"buy side preferred", 50, 55, UnitCost{Value: 50, Source: CostSourceBuy}, true},
		{"sell fallback", nan, 12.5, UnitCost{Value: 12.5, Source: CostSourceSell}, true},
		{"buy only", 30, nan, UnitCost{Value: 30, Source: CostSourceBuy}, true},
		{"neither side", nan, nan, UnitCost{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EffectiveUnitCost(tt.buy, tt.sell)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Mirrors the worked example from the cost model: two parts at 50 (buy)
// and 20 (sell fallback), set selling at 100.
func TestScoreWorkedExample(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
		{SetURL: "ash_prime_set", PartURL: "ash_prime_chassis", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		agg("ash_prime_set", day, math.NaN(), 100, 3, 5),
		agg("ash_prime_blueprint", day, 50, 55, 2, 10),
		agg("ash_prime_chassis", day, math.NaN(), 20, 1, 4),
	}

	recs := s.Score(aggs, []string{"ash_prime_set"})
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.True(t, rec.Complete)
	assert.Equal(t, 100.0, rec.SellMed)
	assert.Equal(t, 70.0, rec.PartsCostBuy)
	assert.Equal(t, 30.0, rec.Margin)
	assert.InDelta(t, 42.857, rec.ROIPct, 0.001)

	// blueprint supplies floor(10/1)=10 sets, chassis floor(4/1)=4
	assert.Equal(t, 4.0, rec.MinPartEffDepth)
	// capped by the set's own buy depth of 3
	assert.Equal(t, 3.0, rec.DailyVolumeCap)
	assert.Equal(t, 90.0, rec.KPIDaily)
	assert.InDelta(t, 30*math.Log1p(math.Sqrt(3*4)), rec.OpportunityScore, 1e-9)
}

func TestScoreBottleneckDepth(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "gara_prime_set", PartURL: "gara_prime_systems", Quantity: 2},
		{SetURL: "gara_prime_set", PartURL: "gara_prime_blueprint", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		agg("gara_prime_set", day, 80, 100, 50, 9),
		agg("gara_prime_systems", day, 10, 12, 5, 10),
		agg("gara_prime_blueprint", day, 5, 6, 3, 7),
	}

	recs := s.Score(aggs, []string{"gara_prime_set"})
	require.Len(t, recs, 1)

	rec := recs[0]
	// min(floor(10/2), floor(7/1)) = 5
	assert.Equal(t, 5.0, rec.MinPartEffDepth)
	assert.Equal(t, 5.0, rec.DailyVolumeCap)

	// Margin and ROI identities hold exactly
	assert.Equal(t, 25.0, rec.PartsCostBuy)
	assert.Equal(t, rec.SellMed-rec.PartsCostBuy, rec.Margin)
	assert.Equal(t, 100*rec.Margin/rec.PartsCostBuy, rec.ROIPct)
	assert.Equal(t, 375.0, rec.KPIDaily)
}

func TestScoreUnknownDepthCountsAsZero(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "nova_prime_set", PartURL: "nova_prime_blueprint", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		agg("nova_prime_set", day, 40, 60, 8, 2),
		agg("nova_prime_blueprint", day, 25, 30, 1, math.NaN()),
	}

	recs := s.Score(aggs, []string{"nova_prime_set"})
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.True(t, rec.Complete)
	assert.Equal(t, 0.0, rec.MinPartEffDepth)
	assert.Equal(t, 0.0, rec.DailyVolumeCap)
	assert.Equal(t, 0.0, rec.KPIDaily)
}

func TestScoreIncompleteDays(t *testing.T) {
	nan := math.NaN()
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	comps := []catalog.Component{
		{SetURL: "mesa_prime_set", PartURL: "mesa_prime_blueprint", Quantity: 1},
		{SetURL: "mesa_prime_set", PartURL: "mesa_prime_chassis", Quantity: 1},
	}

	tests := []struct {
		name string
		aggs []DailyAggregate
	}{
		{
			name: "part has no aggregate that day",
			aggs: []DailyAggregate{
				agg("mesa_prime_set", day, 90, 120, 4, 6),
				agg("mesa_prime_blueprint", day, 40, 45, 2, 8),
			},
		},
		{
			name: "part has neither price side",
			aggs: []DailyAggregate{
				agg("mesa_prime_set", day, 90, 120, 4, 6),
				agg("mesa_prime_blueprint", day, 40, 45, 2, 8),
				agg("mesa_prime_chassis", day, nan, nan, 0, 0),
			},
		},
		{
			name: "set has no sell median",
			aggs: []DailyAggregate{
				agg("mesa_prime_set", day, 90, nan, 4, 6),
				agg("mesa_prime_blueprint", day, 40, 45, 2, 8),
				agg("mesa_prime_chassis", day, 15, 18, 1, 5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScorer(t, comps)
			recs := s.Score(tt.aggs, []string{"mesa_prime_set"})
			require.Len(t, recs, 1)

			rec := recs[0]
			assert.False(t, rec.Complete)
			assert.True(t, math.IsNaN(rec.PartsCostBuy))
			assert.True(t, math.IsNaN(rec.Margin))
			assert.True(t, math.IsNaN(rec.ROIPct))
			assert.True(t, math.IsNaN(rec.KPIDaily))
		})
	}
}

func TestScoreROIUndefinedAtZeroCost(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "volt_prime_set", PartURL: "volt_prime_blueprint", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		agg("volt_prime_set", day, 10, 25, 2, 3),
		agg("volt_prime_blueprint", day, 0, 1, 1, 6),
	}

	recs := s.Score(aggs, []string{"volt_prime_set"})
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.True(t, rec.Complete)
	assert.Equal(t, 0.0, rec.PartsCostBuy)
	assert.Equal(t, 25.0, rec.Margin)
	assert.True(t, math.IsNaN(rec.ROIPct), "ROI undefined when cost is zero")
}

func TestScoreSelectionFilter(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
		{SetURL: "gara_set", PartURL: "gara_blueprint", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		agg("ash_prime_set", day, 80, 100, 3, 5),
		agg("ash_prime_blueprint", day, 50, 55, 2, 10),
		agg("gara_set", day, 30, 40, 2, 2),
		agg("gara_blueprint", day, 10, 12, 1, 4),
	}

	recs := s.Score(aggs, []string{"ash_prime_set"})
	require.Len(t, recs, 1)
	assert.Equal(t, "ash_prime_set", recs[0].SetURL)
}

func TestBuildSetIndexWindow(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
	})
	latest := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	completeDay := func(daysAgo int, kpi float64) SetDaily {
		return SetDaily{
			SetURL:   "ash_prime_set",
			Platform: "pc",
			Date:     latest.AddDate(0, 0, -daysAgo),
			SellMed:  100,
			KPIDaily: kpi,
			Complete: true,
		}
	}

	records := []SetDaily{
		completeDay(40, 10), // outside the 30-day window
		completeDay(29, 40), // window start, inclusive
		completeDay(10, 20),
		completeDay(0, 30),
		{SetURL: "ash_prime_set", Platform: "pc", Date: latest.AddDate(0, 0, 1),
			KPIDaily: math.NaN(), Complete: false}, // incomplete, never the latest
	}

	index := s.BuildSetIndex(records)
	require.Len(t, index, 1)

	row := index[0]
	assert.True(t, row.Date.Equal(latest))
	// (40 + 20 + 30) / 3, missing days excluded rather than zeroed
	assert.InDelta(t, 30.0, row.KPI30dAvg, 1e-9)
}

func TestBuildSetIndexPerPlatform(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	records := []SetDaily{
		{SetURL: "ash_prime_set", Platform: "pc", Date: day, KPIDaily: 10, Complete: true},
		{SetURL: "ash_prime_set", Platform: "ps4", Date: day.AddDate(0, 0, -1), KPIDaily: 4, Complete: true},
	}

	index := s.BuildSetIndex(records)
	require.Len(t, index, 2)
	assert.Equal(t, "pc", index[0].Platform)
	assert.Equal(t, 10.0, index[0].KPI30dAvg)
	assert.Equal(t, "ps4", index[1].Platform)
	assert.Equal(t, 4.0, index[1].KPI30dAvg)
}

func TestBuildSetIndexNoCompleteDays(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 1},
	})

	records := []SetDaily{
		{SetURL: "ash_prime_set", Platform: "pc",
			Date: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), Complete: false},
	}
	assert.Empty(t, s.BuildSetIndex(records))
}

func TestPartsLatestBackwardAsOf(t *testing.T) {
	s := newTestScorer(t, []catalog.Component{
		{SetURL: "ash_prime_set", PartURL: "ash_prime_blueprint", Quantity: 2},
		{SetURL: "ash_prime_set", PartURL: "ash_prime_chassis", Quantity: 1},
	})
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	aggs := []DailyAggregate{
		// blueprint last traded the day before; a later row past the
		// set's date must not be picked up
		agg("ash_prime_blueprint", day.AddDate(0, 0, -1), 7, 8, 3, 12),
		agg("ash_prime_blueprint", day.AddDate(0, 0, 2), 99, 99, 9, 99),
	}

	index := []SetIndexRow{{SetDaily: SetDaily{
		SetURL: "ash_prime_set", Platform: "pc", Date: day, Complete: true,
	}}}

	parts := s.PartsLatest(aggs, index)
	require.Len(t, parts, 2)

	bp := parts[0]
	assert.Equal(t, "ash_prime_blueprint", bp.PartURL)
	assert.Equal(t, 2, bp.Quantity)
	assert.True(t, bp.HasData)
	assert.True(t, bp.Date.Equal(day.AddDate(0, 0, -1)))
	assert.Equal(t, UnitCost{Value: 7, Source: CostSourceBuy}, bp.UnitCost)
	assert.Equal(t, 8.0, bp.SellMed)
	assert.Equal(t, 12.0, bp.SellDepthMed)

	ch := parts[1]
	assert.Equal(t, "ash_prime_chassis", ch.PartURL)
	assert.False(t, ch.HasData)
	assert.True(t, ch.Date.IsZero())
	assert.True(t, math.IsNaN(ch.BuyMed))
	assert.True(t, math.IsNaN(ch.SellMed))
}
