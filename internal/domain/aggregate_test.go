package domain

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayPeriod(y int, m time.Month, d int) Period {
	return Period{Start: date(y, m, d), End: date(y, m, d+1), Granularity: Daily}
}

// halfHourly spreads values over consecutive 30-minute slots starting at t.
func halfHourly(t time.Time, values ...float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Time: t.Add(time.Duration(i) * 30 * time.Minute), Value: v}
	}
	return out
}

func TestSumSamples_ExactSum(t *testing.T) {
	p := dayPeriod(2020, 1, 1)
	v, n := SumSamples(halfHourly(p.Start, 1.0, 2.0), p)
	require.NotNil(t, v)
	assert.Equal(t, 3.0, *v)
	assert.Equal(t, 2, n)
}

func TestSumSamples_NotAveraged(t *testing.T) {
	p := dayPeriod(2020, 7, 1)
	values := make([]float64, 48)
	for i := range values {
		values[i] = 0.25
	}
	v, n := SumSamples(halfHourly(p.Start, values...), p)
	require.NotNil(t, v)
	assert.InDelta(t, 12.0, *v, 1e-9)
	assert.Equal(t, 48, n)
}

func TestSumSamples_ZeroIsNotMissing(t *testing.T) {
	p := dayPeriod(2020, 1, 2)
	v, n := SumSamples(halfHourly(p.Start, 0.0), p)
	require.NotNil(t, v)
	assert.Equal(t, 0.0, *v)
	assert.Equal(t, 1, n)
}

func TestSumSamples_SkipsOutsideWindowAndFill(t *testing.T) {
	p := dayPeriod(2020, 1, 1)
	samples := []Sample{
		{Time: p.Start.Add(-30 * time.Minute), Value: 100},
		{Time: p.Start, Value: 1.5},
		{Time: p.Start.Add(time.Hour), Value: -9999.9},
		{Time: p.Start.Add(2 * time.Hour), Value: math.NaN()},
		{Time: p.End, Value: 100},
	}
	v, n := SumSamples(samples, p)
	require.NotNil(t, v)
	assert.Equal(t, 1.5, *v)
	assert.Equal(t, 1, n)
}

func TestSumSamples_NoValidSamples(t *testing.T) {
	p := dayPeriod(2020, 1, 1)
	v, n := SumSamples(nil, p)
	assert.Nil(t, v)
	assert.Zero(t, n)

	v, _ = SumSamples(halfHourly(p.Start, -9999.9, -9999.9), p)
	assert.Nil(t, v)
}

func TestAreaWeighted_WeightsByIntersectedArea(t *testing.T) {
	p := dayPeriod(2020, 6, 15)
	// Polygon covers all of cell west and the western half of cell east.
	poly := orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.15, 16.1}}.ToPolygon()
	cells := []Cell{
		{Bound: orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.1, 16.1}}, Samples: halfHourly(p.Start, 4, 6)},
		{Bound: orb.Bound{Min: orb.Point{74.1, 16.0}, Max: orb.Point{74.2, 16.1}}, Samples: halfHourly(p.Start, 20)},
		{Bound: orb.Bound{Min: orb.Point{74.3, 16.0}, Max: orb.Point{74.4, 16.1}}, Samples: halfHourly(p.Start, 1000)},
	}

	v, n := AreaWeighted(cells, poly, p)
	require.NotNil(t, v)
	assert.InDelta(t, (10.0*2+20.0*1)/3, *v, 1e-6)
	assert.Equal(t, 3, n)
}

func TestAreaWeighted_SkipsCellsWithoutData(t *testing.T) {
	p := dayPeriod(2020, 6, 15)
	poly := orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.2, 16.1}}.ToPolygon()
	cells := []Cell{
		{Bound: orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.1, 16.1}}, Samples: halfHourly(p.Start, 7)},
		{Bound: orb.Bound{Min: orb.Point{74.1, 16.0}, Max: orb.Point{74.2, 16.1}}},
	}

	v, _ := AreaWeighted(cells, poly, p)
	require.NotNil(t, v)
	assert.InDelta(t, 7.0, *v, 1e-9)
}

func TestAreaWeighted_NoCells(t *testing.T) {
	p := dayPeriod(2020, 6, 15)
	poly := orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.2, 16.1}}.ToPolygon()
	v, n := AreaWeighted(nil, poly, p)
	assert.Nil(t, v)
	assert.Zero(t, n)
}

func TestIntersectionArea_DisjointIsZero(t *testing.T) {
	poly := orb.Bound{Min: orb.Point{74.0, 16.0}, Max: orb.Point{74.1, 16.1}}.ToPolygon()
	cell := orb.Bound{Min: orb.Point{75.0, 16.0}, Max: orb.Point{75.1, 16.1}}
	assert.Zero(t, IntersectionArea(cell, poly))
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 3.0, Round1(2.96))
	assert.Equal(t, 0.1, Round1(0.05))
	assert.Equal(t, 12.3, Round1(12.34))
}
