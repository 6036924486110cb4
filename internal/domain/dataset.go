package domain

import (
	"fmt"
	"slices"
	"time"
)

// Dataset is every observation of one granularity, ordered by period start
// and then catalog order.
type Dataset struct {
	Granularity  Granularity
	Interval     StudyInterval
	Observations []Observation
	GeneratedAt  time.Time
}

// Len returns the number of rows, missing values included.
func (d Dataset) Len() int {
	return len(d.Observations)
}

// MissingCount returns the number of observations without a value.
func (d Dataset) MissingCount() int {
	n := 0
	for _, o := range d.Observations {
		if o.Missing() {
			n++
		}
	}
	return n
}

// Assemble sorts the observations into a dataset. Observations for regions
// that are not in the catalog, or whose granularity differs, are rejected so a
// malformed extraction cannot silently shift rows.
func Assemble(g Granularity, interval StudyInterval, catalog *Catalog, obs []Observation) (Dataset, error) {
	rows := make([]Observation, len(obs))
	copy(rows, obs)

	for _, o := range rows {
		if _, ok := catalog.Order(o.Region); !ok {
			return Dataset{}, fmt.Errorf("assemble %s: unknown region %q", g, o.Region)
		}
		if o.Period.Granularity != g {
			return Dataset{}, fmt.Errorf("assemble %s: observation %s for %q has wrong granularity", g, o.Period, o.Region)
		}
	}

	slices.SortStableFunc(rows, func(a, b Observation) int {
		if c := a.Period.Start.Compare(b.Period.Start); c != 0 {
			return c
		}
		ia, _ := catalog.Order(a.Region)
		ib, _ := catalog.Order(b.Region)
		return ia - ib
	})

	return Dataset{
		Granularity:  g,
		Interval:     interval,
		Observations: rows,
		GeneratedAt:  clock.Now(),
	}, nil
}

// ExpectedRows is the row count of a complete dataset: one row per region per
// period.
func ExpectedRows(g Granularity, interval StudyInterval, coverage MonthlyCoverage, regions int) int {
	n := 0
	for range interval.Periods(g, coverage) {
		n++
	}
	return n * regions
}
