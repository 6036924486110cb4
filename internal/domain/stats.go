package domain

import (
	"math"
	"slices"
	"time"
)

// HeavyRainThresholdMM is the daily total above which a day counts as heavy rain.
const HeavyRainThresholdMM = 50.0

// RegionStats summarizes a region's daily series.
type RegionStats struct {
	Region               string
	AreaKm2              float64
	MeanAnnualMM         float64
	MaxDailyMM           float64
	MinPositiveDailyMM   float64
	StdDevMM             float64
	RainyDaysPerYear     float64
	HeavyRainDaysPerYear float64
	MonsoonPct           float64 // share of rainfall in June–September
	MissingDays          int
}

// ComputeStats derives per-region statistics from a daily dataset, in catalog
// order. Missing days are excluded from every figure and counted separately.
// Per-year figures average over the years that have at least one value.
func ComputeStats(ds Dataset, catalog *Catalog) []RegionStats {
	out := make([]RegionStats, 0, catalog.Len())
	for _, r := range catalog.Regions() {
		out = append(out, regionStats(r, RegionSeries(ds, r.Name)))
	}
	return out
}

func regionStats(r Region, series []Observation) RegionStats {
	st := RegionStats{Region: r.Name, AreaKm2: r.AreaKm2}

	type yearAgg struct {
		total        float64
		rainy, heavy int
	}
	years := map[int]*yearAgg{}
	var (
		values         []float64
		total, monsoon float64
	)
	for _, o := range series {
		if o.Missing() {
			st.MissingDays++
			continue
		}
		v := *o.Value
		values = append(values, v)
		total += v

		y := years[o.Period.Start.Year()]
		if y == nil {
			y = &yearAgg{}
			years[o.Period.Start.Year()] = y
		}
		y.total += v
		if v > 0 {
			y.rainy++
			if st.MinPositiveDailyMM == 0 || v < st.MinPositiveDailyMM {
				st.MinPositiveDailyMM = v
			}
		}
		if v > HeavyRainThresholdMM {
			y.heavy++
		}
		if isMonsoon(o.Period.Start.Month()) {
			monsoon += v
		}
	}
	if len(values) == 0 {
		return st
	}

	st.MaxDailyMM = slices.Max(values)
	st.StdDevMM = stdDev(values)
	if total > 0 {
		st.MonsoonPct = monsoon / total * 100
	}

	var annual, rainy, heavy float64
	for _, y := range years {
		annual += y.total
		rainy += float64(y.rainy)
		heavy += float64(y.heavy)
	}
	n := float64(len(years))
	st.MeanAnnualMM = annual / n
	st.RainyDaysPerYear = rainy / n
	st.HeavyRainDaysPerYear = heavy / n
	return st
}

func isMonsoon(m time.Month) bool {
	return m >= time.June && m <= time.September
}

// stdDev is the sample standard deviation (n-1 denominator).
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
