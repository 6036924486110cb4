package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
)

var statsHeader = []string{
	"taluka",
	"area_km2",
	"mean_annual_rainfall_mm",
	"max_daily_rainfall_mm",
	"min_daily_rainfall_mm",
	"std_dev_mm",
	"rainy_days_per_year",
	"heavy_rain_days_per_year",
	"monsoon_contribution_pct",
	"missing_days",
}

// WriteStats renders the per-region statistics table with two decimals.
func WriteStats(w io.Writer, stats []domain.RegionStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(statsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range stats {
		row := []string{
			s.Region,
			f2(s.AreaKm2),
			f2(s.MeanAnnualMM),
			f2(s.MaxDailyMM),
			f2(s.MinPositiveDailyMM),
			f2(s.StdDevMM),
			f2(s.RainyDaysPerYear),
			f2(s.HeavyRainDaysPerYear),
			f2(s.MonsoonPct),
			strconv.Itoa(s.MissingDays),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", s.Region, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
