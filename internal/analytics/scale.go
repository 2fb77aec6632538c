package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Scale is a per-run normalization range for composite KPI scores,
// computed from the current universe so scores stay comparable across
// runs despite outliers. It is an explicit value threaded through
// calls, never ambient state.
type Scale struct {
	P10 float64
	P90 float64
}

// scaleTarget is where the 90th percentile lands after normalization,
// leaving headroom so outliers above P90 can still differentiate.
const scaleTarget = 0.8

// ComputeScale derives the normalization range from the raw composite
// scores of the current run. NaN values are excluded. A degenerate
// universe (fewer than two distinct values) yields a zero Scale under
// which every score normalizes to 0.
func ComputeScale(values []float64) Scale {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Scale{}
	}

	sort.Float64s(clean)
	return Scale{
		P10: stat.Quantile(0.10, stat.Empirical, clean, nil),
		P90: stat.Quantile(0.90, stat.Empirical, clean, nil),
	}
}

// Normalize maps a raw composite into [0,1]: P10 to 0, P90 to 0.8,
// linear in between, clamped. NaN stays NaN so unknown never reads as
// a real score.
func (s Scale) Normalize(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	spread := s.P90 - s.P10
	if spread <= 0 {
		return 0
	}
	return clamp(scaleTarget*(v-s.P10)/spread, 0, 1)
}

// Composite blends ROI and margin through saturating response curves,
// multiplied by the daily volume cap: deals below the ROI reference
// score near zero, deals above it saturate. NaN for incomplete days.
func (s *Scorer) Composite(rec SetDaily) float64 {
	if !rec.Complete || math.IsNaN(rec.ROIPct) {
		return math.NaN()
	}

	roiResponse := sigmoid((rec.ROIPct - s.cfg.ROIRef) * s.cfg.ROISharpness)
	marginResponse := clamp(
		(rec.Margin-s.cfg.MarginFloor)/(s.cfg.MarginTarget-s.cfg.MarginFloor), 0, 1)

	return roiResponse * marginResponse * rec.DailyVolumeCap
}

// Composites computes the raw composite for every record, aligned by
// index, as input for ComputeScale.
func (s *Scorer) Composites(records []SetDaily) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = s.Composite(rec)
	}
	return out
}

// ApplyScale fills KPIScore on every record using the given per-run
// scale.
func (s *Scorer) ApplyScale(records []SetDaily, scale Scale) {
	for i := range records {
		records[i].KPIScore = scale.Normalize(s.Composite(records[i]))
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
