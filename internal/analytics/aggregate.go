package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/samutus/warframe-market-collector/internal/market"
)

// DailyAggregate is one UTC day of median top-of-book statistics for
// one item. A field with no valid samples that day is NaN.
type DailyAggregate struct {
	ItemURL      string
	Platform     string
	Date         time.Time // UTC midnight
	BuyMed       float64
	SellMed      float64
	BuyDepthMed  float64
	SellDepthMed float64
}

// Aggregate folds raw observations into per-day medians, grouped by
// (item, platform, UTC day). It is a pure function of its input:
// identical observations yield identical output, in (item, platform,
// date) order.
func Aggregate(observations []market.OrderSnapshot) []DailyAggregate {
	type groupKey struct {
		item     string
		platform string
		date     string
	}
	type samples struct {
		buys       []float64
		sells      []float64
		buyDepths  []float64
		sellDepths []float64
	}

	groups := make(map[groupKey]*samples)
	for _, o := range observations {
		day := o.Timestamp.UTC().Format("2006-01-02")
		k := groupKey{item: o.ItemURL, platform: o.Platform, date: day}

		g, ok := groups[k]
		if !ok {
			g = &samples{}
			groups[k] = g
		}

		if !math.IsNaN(o.TopBuyAvg) {
			g.buys = append(g.buys, o.TopBuyAvg)
		}
		if !math.IsNaN(o.TopSellAvg) {
			g.sells = append(g.sells, o.TopSellAvg)
		}
		g.buyDepths = append(g.buyDepths, float64(o.BuyCount))
		g.sellDepths = append(g.sellDepths, float64(o.SellCount))
	}

	out := make([]DailyAggregate, 0, len(groups))
	for k, g := range groups {
		date, err := time.Parse("2006-01-02", k.date)
		if err != nil {
			continue
		}
		out = append(out, DailyAggregate{
			ItemURL:      k.item,
			Platform:     k.platform,
			Date:         date,
			BuyMed:       median(g.buys),
			SellMed:      median(g.sells),
			BuyDepthMed:  median(g.buyDepths),
			SellDepthMed: median(g.sellDepths),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemURL != out[j].ItemURL {
			return out[i].ItemURL < out[j].ItemURL
		}
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Date.Before(out[j].Date)
	})

	return out
}

// AggregateDay aggregates only the observations falling on the given
// UTC calendar day.
func AggregateDay(observations []market.OrderSnapshot, day time.Time) []DailyAggregate {
	want := day.UTC().Format("2006-01-02")

	var scoped []market.OrderSnapshot
	for _, o := range observations {
		if o.Timestamp.UTC().Format("2006-01-02") == want {
			scoped = append(scoped, o)
		}
	}
	return Aggregate(scoped)
}

// median is the conventional sample median: the middle value, or the
// mean of the two middle values for an even count. NaN for no samples.
func median(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
