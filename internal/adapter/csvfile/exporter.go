// Package csvfile writes and reads the tabular rainfall datasets.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/klauspost/compress/gzip"
)

var (
	dailyHeader   = []string{"date", "taluka", "rainfall_mm"}
	monthlyHeader = []string{"year", "month", "taluka", "rainfall_mm"}
)

// Header returns the column names of a dataset granularity.
func Header(g domain.Granularity) []string {
	if g == domain.Monthly {
		return append([]string(nil), monthlyHeader...)
	}
	return append([]string(nil), dailyHeader...)
}

// FileName returns the output file name for a granularity.
func FileName(g domain.Granularity, compress bool) string {
	name := "rainfall_" + string(g) + ".csv"
	if compress {
		name += ".gz"
	}
	return name
}

// Exporter writes each dataset to its own CSV file in a directory. Files are
// replaced atomically so readers never observe a partial dataset.
type Exporter struct {
	dir      string
	compress bool
	logger   *slog.Logger
}

// NewExporter creates an Exporter rooted at dir.
func NewExporter(dir string, compress bool, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, compress: compress, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (e *Exporter) Name() string { return "csv" }

// Path returns the file a granularity is written to.
func (e *Exporter) Path(g domain.Granularity) string {
	return filepath.Join(e.dir, FileName(g, e.compress))
}

// LoadDataset writes the dataset to a temporary file and renames it into place.
func (e *Exporter) LoadDataset(ctx context.Context, ds domain.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, "."+FileName(ds.Granularity, false)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := e.write(tmp, ds); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	path := e.Path(ds.Granularity)
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	e.logger.Debug("csv written", "path", path, "rows", ds.Len())
	return nil
}

func (e *Exporter) write(w io.Writer, ds domain.Dataset) error {
	if !e.compress {
		return WriteDataset(w, ds)
	}
	zw := gzip.NewWriter(w)
	if err := WriteDataset(zw, ds); err != nil {
		zw.Close() //nolint:errcheck,gosec // already failing
		return err
	}
	return zw.Close()
}

// WriteDataset renders a dataset as CSV with a header row. Missing values are
// written as empty fields; values use one decimal.
func WriteDataset(w io.Writer, ds domain.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(ds.Granularity)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, o := range ds.Observations {
		if err := cw.Write(record(o)); err != nil {
			return fmt.Errorf("write %s %s: %w", o.Period, o.Region, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(o domain.Observation) []string {
	v := FormatValue(o.Value)
	if o.Period.Granularity == domain.Monthly {
		return []string{
			strconv.Itoa(o.Period.Start.Year()),
			strconv.Itoa(int(o.Period.Start.Month())),
			o.Region,
			v,
		}
	}
	return []string{o.Period.Label(), o.Region, v}
}

// FormatValue renders a value with one decimal, or the empty string when missing.
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(domain.Round1(*v), 'f', 1, 64)
}
