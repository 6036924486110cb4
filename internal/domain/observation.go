package domain

import (
	"context"
	"time"

	"github.com/paulmach/orb"
)

// Sample is one native-resolution value from the source, already expressed as
// millimeters accumulated over the sample's own interval.
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Cell is one source grid cell with the samples it holds for a window.
type Cell struct {
	Bound   orb.Bound `json:"-"`
	Samples []Sample  `json:"samples"`
}

// PrecipitationSource is the external gridded precipitation product.
type PrecipitationSource interface {
	// PointSamples returns the samples of the grid cell enclosing the point
	// whose timestamps fall inside the period. Returns ErrNoData when the
	// source has nothing for the window.
	PointSamples(ctx context.Context, point Geo, period Period) ([]Sample, error)

	// GridCells returns every grid cell intersecting the polygon together
	// with its samples inside the period.
	GridCells(ctx context.Context, polygon orb.Polygon, period Period) ([]Cell, error)
}

// Observation is the aggregated precipitation of one region over one period.
// A nil Value means the source had no data; it is never reported as zero.
type Observation struct {
	Region  string   `json:"taluka"`
	Period  Period   `json:"period"`
	Value   *float64 `json:"rainfall_mm"`
	Unit    string   `json:"unit"`
	Samples int      `json:"samples"`
}

// Missing reports whether the observation carries no value.
func (o Observation) Missing() bool {
	return o.Value == nil
}

// Unit of every observation value.
const UnitMillimeters = "mm"

// NewObservation builds an observation in millimeters.
func NewObservation(region string, period Period, value *float64, samples int) Observation {
	return Observation{
		Region:  region,
		Period:  period,
		Value:   value,
		Unit:    UnitMillimeters,
		Samples: samples,
	}
}

// Float returns a pointer to v, for building observations in tests and adapters.
func Float(v float64) *float64 {
	return &v
}
