package domain

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Missing-value markers of the model input formats.
const (
	HECHMSMissing = -901.0
	SWATMissing   = -99.0
)

// RegionSeries returns the observations of one region, preserving dataset order.
func RegionSeries(ds Dataset, region string) []Observation {
	var out []Observation
	for _, o := range ds.Observations {
		if o.Region == region {
			out = append(out, o)
		}
	}
	return out
}

// WriteHECHMS renders a daily series as HEC-HMS precipitation gage rows:
//
//	01JAN2020	0000	3.00
//
// Tab separated, no header. Missing days carry HECHMSMissing.
func WriteHECHMS(w io.Writer, series []Observation) error {
	bw := bufio.NewWriter(w)
	for _, o := range series {
		if o.Period.Granularity != Daily {
			return fmt.Errorf("hec-hms: %s is not a daily observation", o.Period)
		}
		date := strings.ToUpper(o.Period.Start.Format("02Jan2006"))
		if _, err := fmt.Fprintf(bw, "%s\t0000\t%.2f\n", date, valueOr(o.Value, HECHMSMissing)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteSWAT renders a daily series as a SWAT precipitation input file: a
// descriptive header, the station location, then one YEAR MO DAY RAINFALL row
// per day. Missing days carry SWATMissing.
func WriteSWAT(w io.Writer, basin Basin, region Region, series []Observation) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s Taluka - %s Basin\n", region.Name, basin.Name)
	fmt.Fprintf(bw, "%s\n", basin.Locality)
	fmt.Fprintf(bw, "Lati\tLongi\tElev\n")
	fmt.Fprintf(bw, "%.4f\t%.4f\t%.0f\n", region.Location.Lat, region.Location.Lon, region.ElevationM)
	fmt.Fprintf(bw, "YEAR\tMO\tDAY\tRAINFALL\n")
	for _, o := range series {
		if o.Period.Granularity != Daily {
			return fmt.Errorf("swat: %s is not a daily observation", o.Period)
		}
		d := o.Period.Start
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%.2f\n", d.Year(), int(d.Month()), d.Day(), valueOr(o.Value, SWATMissing)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func valueOr(v *float64, missing float64) float64 {
	if v == nil {
		return missing
	}
	return *v
}
