// Command validate performs integrity checks on the exported rainfall
// datasets: headers, completeness, row order, duplicate rows, and the
// consistency of monthly totals with the daily series.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dir output \
//	  -regions config/panchganga.json \
//	  -start 2006-01-01 -end 2025-12-31
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/basin-rainfall-etl/internal/config"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
)

// Each daily value is rounded to one decimal before export, so a monthly
// total may drift from the sum of its days by up to half a unit per day.
const roundingSlack = 0.05

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	dir := fs.String("dir", "output", "directory holding rainfall_daily.csv and rainfall_monthly.csv")
	regionsPath := fs.String("regions", "config/panchganga.json", "region catalog")
	start := fs.String("start", "2006-01-01", "study start date")
	end := fs.String("end", "2025-12-31", "study end date")
	coverage := fs.String("coverage", string(domain.CoverYears), "monthly coverage: years or months")
	compressed := fs.Bool("gz", false, "read the .csv.gz variants")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	catalog, err := config.LoadCatalog(*regionsPath)
	if err != nil {
		fmt.Fprintf(stdout, "FATAL: %v\n", err)
		return 1
	}
	interval, err := domain.ParseStudyInterval(*start, *end)
	if err != nil {
		fmt.Fprintf(stdout, "FATAL: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "=== Rainfall Dataset Integrity Validation ===")
	fmt.Fprintln(stdout)

	headers := &phase{name: "Headers"}
	daily := load(filepath.Join(*dir, csvfile.FileName(domain.Daily, *compressed)), domain.Daily, headers)
	monthly := load(filepath.Join(*dir, csvfile.FileName(domain.Monthly, *compressed)), domain.Monthly, headers)

	phases := []*phase{
		headers,
		validateCompleteness(daily, monthly, interval, domain.MonthlyCoverage(*coverage), catalog),
		validateOrder(daily, catalog),
		validateOrder(monthly, catalog),
		validateConsistency(daily, monthly),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(stdout, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Rows: %d daily, %d monthly\n", len(daily), len(monthly))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(stdout, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(stdout, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(stdout, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(stdout, "\nValidation FAILED.")
	return 1
}

// load reads one dataset file, recording header and parse problems.
func load(path string, want domain.Granularity, p *phase) []domain.Observation {
	rc, err := csvfile.Open(path)
	if err != nil {
		p.errorf("%s: %v", path, err)
		return nil
	}
	defer rc.Close()

	g, obs, err := csvfile.ReadObservations(rc)
	switch {
	case errors.Is(err, csvfile.ErrBadHeader):
		p.errorf("%s: header does not match the %s schema", path, want)
		return nil
	case err != nil:
		p.errorf("%s: %v", path, err)
		return nil
	case g != want:
		p.errorf("%s: holds %s rows, want %s", path, g, want)
		return nil
	}
	return obs
}

// validateCompleteness checks one row per region per period.
func validateCompleteness(daily, monthly []domain.Observation, interval domain.StudyInterval, coverage domain.MonthlyCoverage, catalog *domain.Catalog) *phase {
	p := &phase{name: "Completeness (one row per taluka per period)"}
	check := func(g domain.Granularity, obs []domain.Observation) {
		want := domain.ExpectedRows(g, interval, coverage, catalog.Len())
		if len(obs) != want {
			p.errorf("%s: %d rows, want %d", g, len(obs), want)
		}
		seen := make(map[string]bool, len(obs))
		for _, o := range obs {
			if _, ok := catalog.Order(o.Region); !ok {
				p.errorf("%s %s: unknown taluka %q", g, o.Period.Label(), o.Region)
			}
			k := o.Period.Label() + "|" + o.Region
			if seen[k] {
				p.errorf("%s: duplicate row %s", g, k)
			}
			seen[k] = true
		}
		for period := range interval.Periods(g, coverage) {
			for _, r := range catalog.Regions() {
				if !seen[period.Label()+"|"+r.Name] {
					p.errorf("%s: missing row %s|%s", g, period.Label(), r.Name)
				}
			}
		}
	}
	check(domain.Daily, daily)
	check(domain.Monthly, monthly)
	return p
}

// validateOrder checks rows ascend by period, then catalog order.
func validateOrder(obs []domain.Observation, catalog *domain.Catalog) *phase {
	name := "Row order"
	if len(obs) > 0 {
		name = fmt.Sprintf("Row order (%s)", obs[0].Period.Granularity)
	}
	p := &phase{name: name}
	for i := 1; i < len(obs); i++ {
		prev, cur := obs[i-1], obs[i]
		c := cur.Period.Start.Compare(prev.Period.Start)
		if c > 0 {
			continue
		}
		pi, _ := catalog.Order(prev.Region)
		ci, _ := catalog.Order(cur.Region)
		if c < 0 || ci <= pi {
			p.errorf("row %d (%s %s) is out of order after %s %s",
				i+2, cur.Period.Label(), cur.Region, prev.Period.Label(), prev.Region)
		}
	}
	return p
}

type monthKey struct {
	region string
	year   int
	month  time.Month
}

type monthAgg struct {
	sum     float64
	days    int
	values  int
	missing bool
}

// validateConsistency checks each monthly value against the sum of its daily
// values. Months not fully covered by the daily series are skipped.
func validateConsistency(daily, monthly []domain.Observation) *phase {
	p := &phase{name: "Monthly totals match daily sums"}
	sums := make(map[monthKey]*monthAgg)
	for _, o := range daily {
		k := monthKey{o.Region, o.Period.Start.Year(), o.Period.Start.Month()}
		a := sums[k]
		if a == nil {
			a = &monthAgg{}
			sums[k] = a
		}
		a.days++
		if o.Value != nil {
			a.sum += *o.Value
			a.values++
		}
	}

	for _, m := range monthly {
		k := monthKey{m.Region, m.Period.Start.Year(), m.Period.Start.Month()}
		a := sums[k]
		days := int(m.Period.End.Sub(m.Period.Start).Hours() / 24)
		if a == nil || a.days != days {
			continue
		}
		switch {
		case m.Value == nil && a.values > 0:
			p.errorf("%s %s: monthly missing but %d daily values present", m.Period.Label(), m.Region, a.values)
		case m.Value != nil && a.values == 0:
			p.errorf("%s %s: monthly %.1f but every day is missing", m.Period.Label(), m.Region, *m.Value)
		case m.Value != nil && a.values == a.days:
			if d := math.Abs(*m.Value - a.sum); d > roundingSlack*float64(a.days+1) {
				p.errorf("%s %s: monthly %.1f differs from daily sum %.1f", m.Period.Label(), m.Region, *m.Value, a.sum)
			}
		}
	}
	return p
}
