// Command modelexport reads an exported daily rainfall CSV and writes the
// model-ready files derived from it: one CSV per taluka, HEC-HMS and SWAT
// precipitation inputs, and the rainfall statistics table.
//
// Usage:
//
//	go run ./cmd/modelexport \
//	  -daily output/rainfall_daily.csv \
//	  -regions config/panchganga.json \
//	  -out model_ready_data
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/basin-rainfall-etl/internal/config"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
)

const (
	formatCSV    = "csv"
	formatHECHMS = "hec_hms"
	formatSWAT   = "swat"
	formatStats  = "stats"
)

var allFormats = []string{formatCSV, formatHECHMS, formatSWAT, formatStats}

func main() {
	logger := observability.NewLogger("info", "text")
	if err := run(os.Args[1:], logger); err != nil {
		logger.Error("model export failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("modelexport", flag.ContinueOnError)
	dailyPath := fs.String("daily", "output/rainfall_daily.csv", "daily rainfall CSV (optionally .gz)")
	regionsPath := fs.String("regions", "config/panchganga.json", "region catalog")
	outDir := fs.String("out", "model_ready_data", "output directory")
	formatList := fs.String("formats", strings.Join(allFormats, ","), "comma-separated outputs: csv,hec_hms,swat,stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	formats, err := parseFormats(*formatList)
	if err != nil {
		return err
	}

	catalog, err := config.LoadCatalog(*regionsPath)
	if err != nil {
		return err
	}
	ds, err := loadDaily(*dailyPath, catalog)
	if err != nil {
		return err
	}
	logger.Info("daily dataset loaded", "path", *dailyPath, "rows", ds.Len(), "missing", ds.MissingCount())

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	span := fmt.Sprintf("%d_%d", ds.Interval.Start.Year(), ds.Interval.End.Year())
	for _, r := range catalog.Regions() {
		series := domain.RegionSeries(ds, r.Name)
		if slices.Contains(formats, formatCSV) {
			region := ds
			region.Observations = series
			path := filepath.Join(*outDir, r.Name+"_rainfall_"+span+".csv")
			if err := writeFile(path, func(w io.Writer) error { return csvfile.WriteDataset(w, region) }); err != nil {
				return err
			}
		}
		if slices.Contains(formats, formatHECHMS) {
			path := filepath.Join(*outDir, r.Name+"_HEC_HMS_format.txt")
			if err := writeFile(path, func(w io.Writer) error { return domain.WriteHECHMS(w, series) }); err != nil {
				return err
			}
		}
		if slices.Contains(formats, formatSWAT) {
			path := filepath.Join(*outDir, r.Name+"_SWAT_format.txt")
			if err := writeFile(path, func(w io.Writer) error { return domain.WriteSWAT(w, catalog.Basin(), r, series) }); err != nil {
				return err
			}
		}
		logger.Info("taluka exported", "taluka", r.Name, "days", len(series))
	}

	if slices.Contains(formats, formatStats) {
		stats := domain.ComputeStats(ds, catalog)
		path := filepath.Join(*outDir, "Taluka_Rainfall_Statistics.csv")
		if err := writeFile(path, func(w io.Writer) error { return csvfile.WriteStats(w, stats) }); err != nil {
			return err
		}
	}

	logger.Info("model-ready files written", "dir", *outDir, "formats", formats)
	return nil
}

func parseFormats(s string) ([]string, error) {
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !slices.Contains(allFormats, f) {
			return nil, fmt.Errorf("unknown format %q: want one of %s", f, strings.Join(allFormats, ","))
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, errors.New("no output formats selected")
	}
	return out, nil
}

// loadDaily reads the daily CSV and re-assembles it against the catalog so
// rows are in canonical order and unknown talukas are rejected.
func loadDaily(path string, catalog *domain.Catalog) (domain.Dataset, error) {
	rc, err := csvfile.Open(path)
	if err != nil {
		return domain.Dataset{}, err
	}
	defer rc.Close()

	g, obs, err := csvfile.ReadObservations(rc)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	if g != domain.Daily {
		return domain.Dataset{}, fmt.Errorf("%s: want a daily dataset, got %s", path, g)
	}
	if len(obs) == 0 {
		return domain.Dataset{}, fmt.Errorf("%s: no rows", path)
	}

	first, last := obs[0].Period.Start, obs[0].Period.Start
	for _, o := range obs[1:] {
		if o.Period.Start.Before(first) {
			first = o.Period.Start
		}
		if o.Period.Start.After(last) {
			last = o.Period.Start
		}
	}
	interval, err := domain.NewStudyInterval(first, last)
	if err != nil {
		return domain.Dataset{}, err
	}
	return domain.Assemble(domain.Daily, interval, catalog, obs)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
