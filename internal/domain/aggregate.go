package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// SumSamples adds the valid samples that fall inside the period. Samples
// outside the window and non-finite or negative fill values are skipped.
// Returns nil when no valid sample contributes.
func SumSamples(samples []Sample, period Period) (*float64, int) {
	var (
		sum float64
		n   int
	)
	for _, s := range samples {
		if !period.Contains(s.Time) || !validSample(s.Value) {
			continue
		}
		sum += s.Value
		n++
	}
	if n == 0 {
		return nil, 0
	}
	return &sum, n
}

// AreaWeighted combines per-cell totals weighted by the area of each cell
// that falls inside the polygon:
//
//	Σ(cell_total × area(cell ∩ polygon)) / Σ(area(cell ∩ polygon))
//
// Cells without valid samples or without overlap are excluded from both sums.
// Returns nil when no cell contributes. The sample count is the total number
// of samples across contributing cells.
func AreaWeighted(cells []Cell, polygon orb.Polygon, period Period) (*float64, int) {
	var (
		weighted, weights float64
		n                 int
	)
	for _, c := range cells {
		total, k := SumSamples(c.Samples, period)
		if total == nil {
			continue
		}
		w := IntersectionArea(c.Bound, polygon)
		if w <= 0 {
			continue
		}
		weighted += *total * w
		weights += w
		n += k
	}
	if weights == 0 {
		return nil, 0
	}
	v := weighted / weights
	return &v, n
}

// IntersectionArea returns the geodesic area (m²) of the part of the
// rectangular cell that lies inside the polygon.
func IntersectionArea(cell orb.Bound, polygon orb.Polygon) float64 {
	if !cell.Intersects(polygon.Bound()) {
		return 0
	}
	clipped := clip.Polygon(cell, polygon.Clone())
	return polygonArea(clipped)
}

// IMERG and most gridded products flag missing cells with large negative
// fill values (-9999.9, -999).
func validSample(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Round1 rounds to one decimal, the precision of exported values.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
