package analytics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/samutus/warframe-market-collector/internal/catalog"
	"github.com/samutus/warframe-market-collector/pkg/config"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// CostSource tags where an effective unit cost came from.
type CostSource string

const (
	CostSourceBuy  CostSource = "BUY"
	CostSourceSell CostSource = "SELL"
)

// UnitCost is an effective unit cost together with its provenance, so
// downstream consumers can always explain a figure.
type UnitCost struct {
	Value  float64
	Source CostSource
}

// EffectiveUnitCost picks the buy-side median and falls back to the
// sell-side median when no resting buy orders exist. The second return
// is false when the part has neither side that day.
func EffectiveUnitCost(buyMed, sellMed float64) (UnitCost, bool) {
	if !math.IsNaN(buyMed) {
		return UnitCost{Value: buyMed, Source: CostSourceBuy}, true
	}
	if !math.IsNaN(sellMed) {
		return UnitCost{Value: sellMed, Source: CostSourceSell}, true
	}
	return UnitCost{}, false
}

// SetDaily is one scored day for one craftable set. When Complete is
// false (a required part had no data, or the set itself had no sell
// price) the cost fields are NaN and the day is excluded from published
// series.
type SetDaily struct {
	SetURL           string
	Platform         string
	Date             time.Time
	SellMed          float64 // set sell-side median
	BuyDepthMed      float64 // set buy-side depth median
	PartsCostBuy     float64
	Margin           float64
	ROIPct           float64 // NaN when PartsCostBuy <= 0
	MinPartEffDepth  float64
	DailyVolumeCap   float64
	KPIDaily         float64
	OpportunityScore float64
	KPIScore         float64 // normalized composite, set by ApplyScale
	Complete         bool
}

// SetIndexRow is the most recent complete SetDaily per set, widened
// with the trailing KPI average.
type SetIndexRow struct {
	SetDaily
	KPI30dAvg float64
}

// PartLatest is the most recent aligned cost snapshot for one required
// part of a set: the last part day at or before the set's latest date.
type PartLatest struct {
	SetURL       string
	Platform     string
	PartURL      string
	Quantity     int
	UnitCost     UnitCost
	BuyMed       float64
	SellMed      float64
	SellDepthMed float64
	Date         time.Time // zero when the part has no data at all
	HasData      bool
}

// Scorer joins daily aggregates with the component catalog
// ⭐ SSOT: assembly cost, margin, ROI and KPI math live here only
type Scorer struct {
	catalog *catalog.Catalog
	cfg     config.AnalyticsConfig
	logger  *logger.Logger
}

// NewScorer creates a new Scorer instance.
func NewScorer(cat *catalog.Catalog, cfg config.AnalyticsConfig, log *logger.Logger) *Scorer {
	return &Scorer{
		catalog: cat,
		cfg:     cfg,
		logger:  log.WithField("module", "analytics"),
	}
}

type itemKey struct {
	item     string
	platform string
}

// aggIndex holds per-item date-sorted aggregates for exact and
// backward as-of lookup.
type aggIndex struct {
	byItem map[itemKey][]DailyAggregate
}

func buildIndex(aggregates []DailyAggregate) *aggIndex {
	idx := &aggIndex{byItem: make(map[itemKey][]DailyAggregate)}
	for _, a := range aggregates {
		k := itemKey{item: a.ItemURL, platform: a.Platform}
		idx.byItem[k] = append(idx.byItem[k], a)
	}
	for k := range idx.byItem {
		rows := idx.byItem[k]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	return idx
}

// at returns the aggregate for an exact (item, platform, date).
func (idx *aggIndex) at(item, platform string, date time.Time) (DailyAggregate, bool) {
	for _, a := range idx.byItem[itemKey{item: item, platform: platform}] {
		if a.Date.Equal(date) {
			return a, true
		}
	}
	return DailyAggregate{}, false
}

// asOf returns the most recent aggregate at or before date.
func (idx *aggIndex) asOf(item, platform string, date time.Time) (DailyAggregate, bool) {
	rows := idx.byItem[itemKey{item: item, platform: platform}]
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Date.After(date) {
			return rows[i], true
		}
	}
	return DailyAggregate{}, false
}

// Score computes one SetDaily per (set, platform, day) for every day
// the set itself has order book data. sets is the craftable selection;
// sets absent from the aggregates produce no records.
func (s *Scorer) Score(aggregates []DailyAggregate, sets []string) []SetDaily {
	idx := buildIndex(aggregates)

	inSelection := make(map[string]bool, len(sets))
	for _, set := range sets {
		inSelection[set] = true
	}

	var out []SetDaily
	incomplete := 0
	for _, agg := range aggregates {
		if !inSelection[agg.ItemURL] {
			continue
		}
		rec := s.scoreDay(idx, agg)
		if !rec.Complete {
			incomplete++
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SetURL != out[j].SetURL {
			return out[i].SetURL < out[j].SetURL
		}
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Date.Before(out[j].Date)
	})

	s.logger.WithFields(map[string]interface{}{
		"records":    len(out),
		"incomplete": incomplete,
	}).Info("Scored set days")

	return out
}

// scoreDay computes the cost model for one set on one day.
func (s *Scorer) scoreDay(idx *aggIndex, setAgg DailyAggregate) SetDaily {
	rec := SetDaily{
		SetURL:           setAgg.ItemURL,
		Platform:         setAgg.Platform,
		Date:             setAgg.Date,
		SellMed:          setAgg.SellMed,
		BuyDepthMed:      setAgg.BuyDepthMed,
		PartsCostBuy:     math.NaN(),
		Margin:           math.NaN(),
		ROIPct:           math.NaN(),
		MinPartEffDepth:  math.NaN(),
		DailyVolumeCap:   math.NaN(),
		KPIDaily:         math.NaN(),
		OpportunityScore: math.NaN(),
		KPIScore:         math.NaN(),
	}

	parts := s.catalog.Parts(rec.SetURL)
	if len(parts) == 0 || math.IsNaN(rec.SellMed) {
		return rec
	}

	cost := 0.0
	minEff := math.Inf(1)
	for _, part := range parts {
		partAgg, ok := idx.at(part.PartURL, rec.Platform, rec.Date)
		if !ok {
			return rec
		}
		unit, ok := EffectiveUnitCost(partAgg.BuyMed, partAgg.SellMed)
		if !ok {
			return rec
		}
		cost += unit.Value * float64(part.Quantity)

		eff := effPartDepth(partAgg.SellDepthMed, part.Quantity)
		if eff < minEff {
			minEff = eff
		}
	}

	rec.Complete = true
	rec.PartsCostBuy = cost
	rec.Margin = rec.SellMed - cost
	if cost > 0 {
		rec.ROIPct = 100 * rec.Margin / cost
	}
	rec.MinPartEffDepth = minEff

	assemblyCap := math.Max(0, minEff)
	buyerCap := math.Max(0, orZero(rec.BuyDepthMed))
	rec.DailyVolumeCap = math.Min(assemblyCap, buyerCap)
	rec.KPIDaily = math.Max(0, rec.Margin) * rec.DailyVolumeCap

	rec.OpportunityScore = rec.Margin * math.Log1p(math.Sqrt(buyerCap*assemblyCap))

	return rec
}

// effPartDepth is how many whole sets one part's sell-side depth can
// supply: floor(depth / quantity), zero when the depth is unknown.
func effPartDepth(sellDepthMed float64, quantity int) float64 {
	if math.IsNaN(sellDepthMed) {
		return 0
	}
	return math.Floor(sellDepthMed / float64(quantity))
}

func orZero(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

// BuildSetIndex projects the most recent complete day per (set,
// platform) and attaches the trailing KPI average over windowDays
// calendar days ending at that day. Days without a complete record are
// excluded from the average, never counted as zero.
func (s *Scorer) BuildSetIndex(records []SetDaily) []SetIndexRow {
	type setKey struct {
		set      string
		platform string
	}

	complete := make(map[setKey][]SetDaily)
	for _, rec := range records {
		if !rec.Complete {
			continue
		}
		k := setKey{set: rec.SetURL, platform: rec.Platform}
		complete[k] = append(complete[k], rec)
	}

	out := make([]SetIndexRow, 0, len(complete))
	for _, days := range complete {
		sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
		latest := days[len(days)-1]

		windowStart := latest.Date.AddDate(0, 0, -(s.cfg.KPIWindowDays - 1))
		var kpis []float64
		for _, d := range days {
			if !d.Date.Before(windowStart) && !math.IsNaN(d.KPIDaily) {
				kpis = append(kpis, d.KPIDaily)
			}
		}

		avg := math.NaN()
		if len(kpis) > 0 {
			avg = stat.Mean(kpis, nil)
		}

		out = append(out, SetIndexRow{SetDaily: latest, KPI30dAvg: avg})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SetURL != out[j].SetURL {
			return out[i].SetURL < out[j].SetURL
		}
		return out[i].Platform < out[j].Platform
	})

	return out
}

// PartsLatest aligns each required part to its set's latest complete
// date: the most recent part day at or before that date (backward
// as-of). Parts with no data at all keep a row with NaN cells so the
// display layer can show the gap.
func (s *Scorer) PartsLatest(aggregates []DailyAggregate, index []SetIndexRow) []PartLatest {
	idx := buildIndex(aggregates)

	var out []PartLatest
	for _, row := range index {
		for _, part := range s.catalog.Parts(row.SetURL) {
			pl := PartLatest{
				SetURL:       row.SetURL,
				Platform:     row.Platform,
				PartURL:      part.PartURL,
				Quantity:     part.Quantity,
				BuyMed:       math.NaN(),
				SellMed:      math.NaN(),
				SellDepthMed: math.NaN(),
			}

			if agg, ok := idx.asOf(part.PartURL, row.Platform, row.Date); ok {
				pl.BuyMed = agg.BuyMed
				pl.SellMed = agg.SellMed
				pl.SellDepthMed = agg.SellDepthMed
				pl.Date = agg.Date
				if unit, ok := EffectiveUnitCost(agg.BuyMed, agg.SellMed); ok {
					pl.UnitCost = unit
					pl.HasData = true
				}
			}

			out = append(out, pl)
		}
	}

	return out
}
