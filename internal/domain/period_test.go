package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func collect(seq func(func(Period) bool)) []Period {
	var out []Period
	for p := range seq {
		out = append(out, p)
	}
	return out
}

func TestStudyInterval_DailyPeriods_CountAndTiling(t *testing.T) {
	cases := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"single day", date(2020, 1, 1), date(2020, 1, 1), 1},
		{"two days", date(2020, 1, 1), date(2020, 1, 2), 2},
		{"leap year", date(2020, 1, 1), date(2020, 12, 31), 366},
		{"across year end", date(2019, 12, 30), date(2020, 1, 2), 4},
		{"reference study", date(2006, 1, 1), date(2025, 12, 31), 7305},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			si, err := NewStudyInterval(tc.start, tc.end)
			require.NoError(t, err)

			periods := collect(si.DailyPeriods())
			require.Len(t, periods, tc.want)
			assert.Equal(t, tc.want, si.Days())

			assert.Equal(t, si.Start, periods[0].Start)
			assert.Equal(t, si.End.AddDate(0, 0, 1), periods[len(periods)-1].End)
			for i, p := range periods {
				assert.Equal(t, Daily, p.Granularity)
				assert.Equal(t, p.Start.AddDate(0, 0, 1), p.End)
				if i > 0 {
					assert.Equal(t, periods[i-1].End, p.Start, "gap or overlap at %d", i)
				}
			}
		})
	}
}

func TestStudyInterval_MonthlyPeriods_FullYears(t *testing.T) {
	si, err := ParseStudyInterval("2006-01-15", "2025-12-20")
	require.NoError(t, err)

	periods := collect(si.MonthlyPeriods(CoverYears))
	require.Len(t, periods, 12*si.Years())
	assert.Equal(t, 20, si.Years())

	// Partial boundary months are still whole calendar months.
	assert.Equal(t, date(2006, 1, 1), periods[0].Start)
	assert.Equal(t, date(2026, 1, 1), periods[len(periods)-1].End)
	for i, p := range periods {
		assert.Equal(t, 1, p.Start.Day())
		assert.Equal(t, p.Start.AddDate(0, 1, 0), p.End)
		if i > 0 {
			assert.Equal(t, periods[i-1].End, p.Start)
		}
	}
}

func TestStudyInterval_MonthlyPeriods_ShortIntervalStillCoversYear(t *testing.T) {
	si, err := ParseStudyInterval("2020-01-01", "2020-01-02")
	require.NoError(t, err)

	assert.Len(t, collect(si.MonthlyPeriods(CoverYears)), 12)
	assert.Len(t, collect(si.MonthlyPeriods(CoverMonths)), 1)
}

func TestStudyInterval_MonthlyPeriods_TouchedMonths(t *testing.T) {
	si, err := ParseStudyInterval("2019-11-20", "2020-02-03")
	require.NoError(t, err)

	periods := collect(si.MonthlyPeriods(CoverMonths))
	require.Len(t, periods, 4)
	assert.Equal(t, "2019-11", periods[0].Label())
	assert.Equal(t, "2020-02", periods[3].Label())
	assert.Equal(t, date(2020, 3, 1), periods[3].End)
}

func TestStudyInterval_SequencesAreRestartable(t *testing.T) {
	si, err := ParseStudyInterval("2020-02-27", "2020-03-02")
	require.NoError(t, err)

	seq := si.DailyPeriods()
	first := collect(seq)
	second := collect(seq)
	assert.Equal(t, first, second)
	assert.Len(t, first, 5)

	// Early break does not disturb later iterations.
	for range seq {
		break
	}
	assert.Len(t, collect(seq), 5)
}

func TestNewStudyInterval_EndBeforeStart(t *testing.T) {
	_, err := NewStudyInterval(date(2020, 1, 2), date(2020, 1, 1))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "before start")
}

func TestParseStudyInterval_InvalidDate(t *testing.T) {
	_, err := ParseStudyInterval("2020-13-01", "2020-12-31")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestNewStudyInterval_TruncatesToMidnightUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	si, err := NewStudyInterval(time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC), time.Date(2020, 1, 3, 1, 0, 0, 0, ist))
	require.NoError(t, err)
	assert.Equal(t, date(2020, 1, 1), si.Start)
	assert.Equal(t, date(2020, 1, 2), si.End)
}

func TestPeriod_ContainsIsHalfOpen(t *testing.T) {
	p := Period{Start: date(2020, 1, 1), End: date(2020, 1, 2), Granularity: Daily}
	assert.True(t, p.Contains(date(2020, 1, 1)))
	assert.True(t, p.Contains(date(2020, 1, 1).Add(23*time.Hour+30*time.Minute)))
	assert.False(t, p.Contains(date(2020, 1, 2)))
	assert.False(t, p.Contains(date(2019, 12, 31)))
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("day")
	require.NoError(t, err)
	assert.Equal(t, Daily, g)

	g, err = ParseGranularity("monthly")
	require.NoError(t, err)
	assert.Equal(t, Monthly, g)

	_, err = ParseGranularity("hourly")
	assert.True(t, IsConfigError(err))
}
