package analytics

import (
	"math"
)

// Divergence flags a set whose independently re-derived assembly cost
// drifted from the cost model's figure beyond tolerance.
type Divergence struct {
	SetURL     string
	Platform   string
	ModelCost  float64 // PartsCostBuy from the cost model
	LatestCost float64 // sum of unit_cost_latest x quantity
	DeltaPct   float64
}

// CheckReconciliation re-derives each indexed set's assembly cost from
// the latest aligned part snapshots and compares it with the model's
// PartsCostBuy. A relative difference above tolerancePct yields a
// Divergence. Alerts are advisory: the pipeline run never fails on
// them. Sets whose latest snapshot is missing a part are skipped, as
// are sets with a non-positive model cost.
func CheckReconciliation(index []SetIndexRow, parts []PartLatest, tolerancePct float64) []Divergence {
	type setKey struct {
		set      string
		platform string
	}

	sums := make(map[setKey]float64)
	missing := make(map[setKey]bool)
	for _, p := range parts {
		k := setKey{set: p.SetURL, platform: p.Platform}
		if !p.HasData {
			missing[k] = true
			continue
		}
		sums[k] += p.UnitCost.Value * float64(p.Quantity)
	}

	var out []Divergence
	for _, row := range index {
		if !row.Complete || math.IsNaN(row.PartsCostBuy) || row.PartsCostBuy <= 0 {
			continue
		}

		k := setKey{set: row.SetURL, platform: row.Platform}
		if missing[k] {
			continue
		}
		latest, ok := sums[k]
		if !ok {
			continue
		}

		deltaPct := 100 * math.Abs(latest-row.PartsCostBuy) / row.PartsCostBuy
		if deltaPct > tolerancePct {
			out = append(out, Divergence{
				SetURL:     row.SetURL,
				Platform:   row.Platform,
				ModelCost:  row.PartsCostBuy,
				LatestCost: latest,
				DeltaPct:   deltaPct,
			})
		}
	}

	return out
}
