package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// ErrBadHeader is returned when a file does not start with a known header.
var ErrBadHeader = errors.New("unrecognized csv header")

// Open opens a dataset file, decompressing it when the name ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.f.Close())
}

// ReadObservations parses a dataset written by WriteDataset. The granularity
// is detected from the header. Rows keep file order.
func ReadObservations(r io.Reader) (domain.Granularity, []domain.Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return "", nil, fmt.Errorf("read header: %w", err)
	}

	var g domain.Granularity
	switch {
	case slices.Equal(header, dailyHeader):
		g = domain.Daily
	case slices.Equal(header, monthlyHeader):
		g = domain.Monthly
	default:
		return "", nil, fmt.Errorf("%w: %v", ErrBadHeader, header)
	}
	cr.FieldsPerRecord = len(header)

	var out []domain.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return g, nil, fmt.Errorf("line %d: %w", line, err)
		}
		o, err := parseRecord(g, rec)
		if err != nil {
			return g, nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, o)
	}
	return g, out, nil
}

func parseRecord(g domain.Granularity, rec []string) (domain.Observation, error) {
	var (
		start  time.Time
		region string
		raw    string
	)
	if g == domain.Monthly {
		year, err := strconv.Atoi(rec[0])
		if err != nil {
			return domain.Observation{}, fmt.Errorf("invalid year %q", rec[0])
		}
		month, err := strconv.Atoi(rec[1])
		if err != nil || month < 1 || month > 12 {
			return domain.Observation{}, fmt.Errorf("invalid month %q", rec[1])
		}
		start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		region, raw = rec[2], rec[3]
	} else {
		d, err := time.Parse(time.DateOnly, rec[0])
		if err != nil {
			return domain.Observation{}, fmt.Errorf("invalid date %q", rec[0])
		}
		start = d
		region, raw = rec[1], rec[2]
	}
	if region == "" {
		return domain.Observation{}, errors.New("empty taluka")
	}

	end := start.AddDate(0, 0, 1)
	if g == domain.Monthly {
		end = start.AddDate(0, 1, 0)
	}
	period := domain.Period{Start: start, End: end, Granularity: g}

	if raw == "" {
		return domain.NewObservation(region, period, nil, 0), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("invalid rainfall_mm %q", raw)
	}
	return domain.NewObservation(region, period, &v, 0), nil
}
