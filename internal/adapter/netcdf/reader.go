package netcdf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	cdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

const defaultResolution = 0.1

var (
	latNames = []string{"lat", "latitude"}
	lonNames = []string{"lon", "longitude"}
)

// readFrame loads the first time step of variable from one file.
func readFrame(path, variable string, start time.Time, interval time.Duration) (*frame, error) {
	nc, err := cdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	lats, err := coordValues(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lons, err := coordValues(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	vg, err := nc.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %q: %w", path, variable, err)
	}
	raw, err := vg.GetSlice(0, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: read %q: %w", path, variable, err)
	}

	enc, err := encodingOf(vg.Attributes(), interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	enc.lonMajor = lonMajor(vg.Dimensions())

	f, err := decode(raw, lats, lons, enc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.start = start
	return f, nil
}

func coordValues(nc api.Group, names []string) ([]float64, error) {
	var lastErr error
	for _, name := range names {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			lastErr = err
			continue
		}
		v, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out, ok := floats(v)
		if !ok {
			return nil, fmt.Errorf("coordinate %s has unsupported type %T", name, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no coordinate among %v: %w", names, lastErr)
}

// lonMajor reports whether the two spatial dimensions are ordered
// (lon, lat), as in IMERG half-hourly files.
func lonMajor(dims []string) bool {
	if len(dims) < 3 {
		return false
	}
	return slices.Contains(lonNames, dims[1])
}

// encoding describes how stored values map to millimeter accumulations.
type encoding struct {
	factor   float64
	scale    float64
	offset   float64
	fill     []float64
	lonMajor bool
}

func encodingOf(attrs api.AttributeMap, interval time.Duration) (encoding, error) {
	enc := encoding{scale: 1}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		enc.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		enc.offset = v
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(attrs, key); ok {
			enc.fill = append(enc.fill, v)
		}
	}

	units := ""
	if attrs != nil {
		if v, ok := attrs.Get("units"); ok {
			units, _ = v.(string)
		}
	}
	factor, err := unitFactor(units, interval)
	if err != nil {
		return enc, err
	}
	enc.factor = factor
	return enc, nil
}

// unitFactor converts one stored value into millimeters over interval.
func unitFactor(units string, interval time.Duration) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "mm":
		return 1, nil
	case "mm/hr", "mm/h", "mm h-1", "mm hr-1":
		return interval.Hours(), nil
	case "kg m-2 s-1", "mm/s", "mm s-1":
		return interval.Seconds(), nil
	case "m":
		return 1000, nil
	default:
		return 0, fmt.Errorf("unsupported units %q", units)
	}
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	if fs, ok := floats(v); ok && len(fs) > 0 {
		return fs[0], true
	}
	return 0, false
}

// floats widens a scalar or 1-D numeric value to []float64.
func floats(v any) ([]float64, bool) {
	switch t := v.(type) {
	case float64:
		return []float64{t}, true
	case float32:
		return []float64{float64(t)}, true
	case int16:
		return []float64{float64(t)}, true
	case int32:
		return []float64{float64(t)}, true
	case int64:
		return []float64{float64(t)}, true
	case []float64:
		return slices.Clone(t), true
	case []float32:
		return widen(t), true
	case []int16:
		return widen(t), true
	case []int32:
		return widen(t), true
	case []int64:
		return widen(t), true
	default:
		return nil, false
	}
}

type number interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func widen[T number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// decode turns a single-time-step slice into a latitude-major frame with
// ascending coordinates.
func decode(raw any, lats, lons []float64, enc encoding) (*frame, error) {
	var grid [][]float64
	switch t := raw.(type) {
	case [][][]float32:
		grid = first(t)
	case [][][]float64:
		grid = first(t)
	case [][][]int16:
		grid = first(t)
	case [][][]int32:
		grid = first(t)
	case [][]float32:
		grid = rows(t)
	case [][]float64:
		grid = rows(t)
	default:
		return nil, fmt.Errorf("unsupported variable layout %T", raw)
	}

	rowsN, colsN := len(lats), len(lons)
	if enc.lonMajor {
		rowsN, colsN = colsN, rowsN
	}
	if len(grid) != rowsN {
		return nil, fmt.Errorf("variable shape does not match %d lat x %d lon", len(lats), len(lons))
	}
	for _, row := range grid {
		if len(row) != colsN {
			return nil, fmt.Errorf("variable shape does not match %d lat x %d lon", len(lats), len(lons))
		}
	}

	f := &frame{
		lats:   slices.Clone(lats),
		lons:   slices.Clone(lons),
		values: make([]float64, len(lats)*len(lons)),
	}
	for i := range lats {
		for j := range lons {
			var stored float64
			if enc.lonMajor {
				stored = grid[j][i]
			} else {
				stored = grid[i][j]
			}
			f.values[i*len(lons)+j] = enc.apply(stored)
		}
	}
	f.normalize()
	return f, nil
}

func (e encoding) apply(stored float64) float64 {
	if math.IsNaN(stored) {
		return math.NaN()
	}
	for _, fv := range e.fill {
		if stored == fv {
			return math.NaN()
		}
	}
	return (stored*e.scale + e.offset) * e.factor
}

func first[T number](v [][][]T) [][]float64 {
	if len(v) == 0 {
		return nil
	}
	return rows(v[0])
}

func rows[T number](v [][]T) [][]float64 {
	out := make([][]float64, len(v))
	for i, r := range v {
		out[i] = widen(r)
	}
	return out
}

// normalize flips descending axes so both coordinates ascend.
func (f *frame) normalize() {
	nLat, nLon := len(f.lats), len(f.lons)
	if nLat > 1 && f.lats[0] > f.lats[nLat-1] {
		slices.Reverse(f.lats)
		for top, bottom := 0, nLat-1; top < bottom; top, bottom = top+1, bottom-1 {
			for j := range nLon {
				a, b := top*nLon+j, bottom*nLon+j
				f.values[a], f.values[b] = f.values[b], f.values[a]
			}
		}
	}
	if nLon > 1 && f.lons[0] > f.lons[nLon-1] {
		slices.Reverse(f.lons)
		for i := range nLat {
			slices.Reverse(f.values[i*nLon : (i+1)*nLon])
		}
	}
}
