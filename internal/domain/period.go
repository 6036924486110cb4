package domain

import (
	"fmt"
	"iter"
	"time"
)

// Granularity is the aggregation period length of an observation.
type Granularity string

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
)

// ParseGranularity accepts "daily"/"day" and "monthly"/"month".
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "daily", "day":
		return Daily, nil
	case "monthly", "month":
		return Monthly, nil
	default:
		return "", configErrorf("granularity", "unknown granularity %q", s)
	}
}

// MonthlyCoverage selects which months the monthly index emits.
type MonthlyCoverage string

const (
	// CoverYears emits all twelve months of every year the interval touches.
	CoverYears MonthlyCoverage = "years"
	// CoverMonths emits only the months the interval touches.
	CoverMonths MonthlyCoverage = "months"
)

// Period is a half-open UTC interval [Start, End).
type Period struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Label renders the period as it appears in exports: YYYY-MM-DD for days,
// YYYY-MM for months.
func (p Period) Label() string {
	if p.Granularity == Monthly {
		return p.Start.Format("2006-01")
	}
	return p.Start.Format(time.DateOnly)
}

func (p Period) String() string {
	return string(p.Granularity) + ":" + p.Label()
}

// StudyInterval is an inclusive range of calendar dates.
type StudyInterval struct {
	Start time.Time
	End   time.Time
}

// NewStudyInterval truncates both dates to UTC midnight and checks ordering.
func NewStudyInterval(start, end time.Time) (StudyInterval, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return StudyInterval{}, configErrorf("interval", "end date %s is before start date %s",
			e.Format(time.DateOnly), s.Format(time.DateOnly))
	}
	return StudyInterval{Start: s, End: e}, nil
}

// ParseStudyInterval parses two YYYY-MM-DD dates.
func ParseStudyInterval(start, end string) (StudyInterval, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return StudyInterval{}, configErrorf("interval", "invalid start date %q", start)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return StudyInterval{}, configErrorf("interval", "invalid end date %q", end)
	}
	return NewStudyInterval(s, e)
}

// Days returns the number of calendar days in the interval, inclusive.
func (si StudyInterval) Days() int {
	return int(si.End.Sub(si.Start).Hours()/24) + 1
}

// Years returns the number of distinct calendar years the interval touches.
func (si StudyInterval) Years() int {
	return si.End.Year() - si.Start.Year() + 1
}

func (si StudyInterval) String() string {
	return fmt.Sprintf("%s..%s", si.Start.Format(time.DateOnly), si.End.Format(time.DateOnly))
}

// DailyPeriods yields one period per calendar date from start to end
// inclusive. The sequence is lazy and can be ranged over any number of times.
func (si StudyInterval) DailyPeriods() iter.Seq[Period] {
	return func(yield func(Period) bool) {
		for d := si.Start; !d.After(si.End); d = d.AddDate(0, 0, 1) {
			if !yield(Period{Start: d, End: d.AddDate(0, 0, 1), Granularity: Daily}) {
				return
			}
		}
	}
}

// MonthlyPeriods yields whole calendar months. Months that only partly
// overlap the interval are still emitted in full.
func (si StudyInterval) MonthlyPeriods(coverage MonthlyCoverage) iter.Seq[Period] {
	first := time.Date(si.Start.Year(), si.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(si.End.Year(), si.End.Month(), 1, 0, 0, 0, 0, time.UTC)
	if coverage != CoverMonths {
		first = time.Date(si.Start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		last = time.Date(si.End.Year(), time.December, 1, 0, 0, 0, 0, time.UTC)
	}
	return func(yield func(Period) bool) {
		for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
			if !yield(Period{Start: m, End: m.AddDate(0, 1, 0), Granularity: Monthly}) {
				return
			}
		}
	}
}

// Periods returns the period sequence for a granularity.
func (si StudyInterval) Periods(g Granularity, coverage MonthlyCoverage) iter.Seq[Period] {
	if g == Monthly {
		return si.MonthlyPeriods(coverage)
	}
	return si.DailyPeriods()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
