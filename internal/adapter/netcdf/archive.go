// Package netcdf reads precipitation from a local archive of IMERG-style
// NetCDF files, one time step per file.
//
// Files are indexed by the start and end stamps embedded in the IMERG file
// name (for example 3B-HHR.MS.MRG.3IMERG.20200101-S003000-E005959.0030.V07B.HDF5.nc4)
// and decoded lazily. Decoded frames are kept in a bounded LRU.
package netcdf

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/cache"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
)

const (
	defaultInterval = 30 * time.Minute
	defaultFrames   = 512
)

var stampPattern = regexp.MustCompile(`(\d{8})-S(\d{6})-E(\d{6})`)

var extensions = []string{".nc", ".nc4", ".hdf5", ".h5"}

type file struct {
	path     string
	start    time.Time
	interval time.Duration
}

// Archive implements domain.PrecipitationSource over a directory of files.
type Archive struct {
	variable string
	files    []file
	frames   *cache.LRU[*frame]
	loads    singleflight.Group
	load     func(f file, variable string) (*frame, error)
	logger   *slog.Logger
}

// NewArchive indexes every IMERG-named file under dir. maxFrames bounds the
// decoded frame cache; zero selects a default.
func NewArchive(dir, variable string, maxFrames int, logger *slog.Logger) (*Archive, error) {
	files, err := scan(dir, logger)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("NETCDF_DIR %s: no IMERG-named files found", dir)
	}
	logger.Info("netcdf archive indexed",
		"dir", dir,
		"files", len(files),
		"first", files[0].start,
		"last", files[len(files)-1].start,
	)
	return newArchive(files, variable, maxFrames, logger), nil
}

func newArchive(files []file, variable string, maxFrames int, logger *slog.Logger) *Archive {
	if maxFrames <= 0 {
		maxFrames = defaultFrames
	}
	sort.Slice(files, func(i, j int) bool { return files[i].start.Before(files[j].start) })
	return &Archive{
		variable: variable,
		files:    files,
		frames:   cache.NewLRU[*frame](maxFrames),
		load: func(f file, variable string) (*frame, error) {
			return readFrame(f.path, variable, f.start, f.interval)
		},
		logger: logger,
	}
}

func scan(dir string, logger *slog.Logger) ([]file, error) {
	var files []file
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExtension(path) {
			return nil
		}
		f, ok := parseName(filepath.Base(path))
		if !ok {
			logger.Debug("skipping file without IMERG timestamp", "path", path)
			return nil
		}
		f.path = path
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan NETCDF_DIR: %w", err)
	}
	return files, nil
}

func hasExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// parseName reads the start and end stamps from an IMERG file name. The end
// stamp is the last second covered, so the interval is end-start+1s.
func parseName(name string) (file, bool) {
	m := stampPattern.FindStringSubmatch(name)
	if m == nil {
		return file{}, false
	}
	start, err := time.Parse("20060102150405", m[1]+m[2])
	if err != nil {
		return file{}, false
	}
	end, err := time.Parse("20060102150405", m[1]+m[3])
	if err != nil {
		return file{}, false
	}
	interval := end.Sub(start) + time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	return file{start: start, interval: interval}, true
}

// window returns the files whose start falls inside the period.
func (a *Archive) window(period domain.Period) []file {
	lo := sort.Search(len(a.files), func(i int) bool { return !a.files[i].start.Before(period.Start) })
	hi := sort.Search(len(a.files), func(i int) bool { return !a.files[i].start.Before(period.End) })
	return a.files[lo:hi]
}

func (a *Archive) frame(f file) (*frame, error) {
	if fr, ok := a.frames.Get(f.path); ok {
		return fr, nil
	}
	v, err, _ := a.loads.Do(f.path, func() (any, error) {
		fr, err := a.load(f, a.variable)
		if err != nil {
			return nil, err
		}
		a.frames.Put(f.path, fr)
		return fr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*frame), nil
}

// PointSamples returns the value of the enclosing grid cell for every file
// inside the period.
func (a *Archive) PointSamples(ctx context.Context, point domain.Geo, period domain.Period) ([]domain.Sample, error) {
	var samples []domain.Sample
	for _, f := range a.window(period) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fr, err := a.frame(f)
		if err != nil {
			return nil, err
		}
		i, j, ok := fr.cell(point.Lat, point.Lon)
		if !ok {
			continue
		}
		if v := fr.at(i, j); !math.IsNaN(v) {
			samples = append(samples, domain.Sample{Time: fr.start, Value: v})
		}
	}
	if len(samples) == 0 {
		return nil, domain.ErrNoData
	}
	return samples, nil
}

// GridCells returns every cell overlapping the polygon's bounds with its
// samples inside the period. AreaWeighted discards cells that only touch the
// bounds.
func (a *Archive) GridCells(ctx context.Context, polygon orb.Polygon, period domain.Period) ([]domain.Cell, error) {
	bound := polygon.Bound()
	index := make(map[orb.Bound]int)
	var cells []domain.Cell
	for _, f := range a.window(period) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fr, err := a.frame(f)
		if err != nil {
			return nil, err
		}
		for _, ij := range fr.overlapping(bound) {
			v := fr.at(ij[0], ij[1])
			if math.IsNaN(v) {
				continue
			}
			b := fr.bound(ij[0], ij[1])
			k, ok := index[b]
			if !ok {
				k = len(cells)
				index[b] = k
				cells = append(cells, domain.Cell{Bound: b})
			}
			cells[k].Samples = append(cells[k].Samples, domain.Sample{Time: fr.start, Value: v})
		}
	}
	if len(cells) == 0 {
		return nil, domain.ErrNoData
	}
	return cells, nil
}
