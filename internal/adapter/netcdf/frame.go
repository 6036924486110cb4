package netcdf

import (
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// frame is one time step of a regular lat/lon grid. Values are stored
// row-major by latitude and are already millimeters accumulated over the
// frame's interval; NaN marks fill.
type frame struct {
	start  time.Time
	lats   []float64 // ascending cell centers
	lons   []float64 // ascending cell centers
	values []float64
}

func (f *frame) at(i, j int) float64 {
	return f.values[i*len(f.lons)+j]
}

// nearest returns the index of the center closest to v, or false when v lies
// outside the outer cell edges.
func nearest(centers []float64, v float64) (int, bool) {
	if len(centers) == 0 {
		return 0, false
	}
	half := step(centers) / 2
	if v < centers[0]-half || v > centers[len(centers)-1]+half {
		return 0, false
	}
	k := sort.SearchFloat64s(centers, v)
	switch {
	case k == 0:
		return 0, true
	case k == len(centers):
		return k - 1, true
	case v-centers[k-1] <= centers[k]-v:
		return k - 1, true
	default:
		return k, true
	}
}

func step(centers []float64) float64 {
	if len(centers) < 2 {
		return defaultResolution
	}
	return math.Abs(centers[1] - centers[0])
}

// cell locates the grid cell enclosing (lat, lon).
func (f *frame) cell(lat, lon float64) (int, int, bool) {
	i, ok := nearest(f.lats, lat)
	if !ok {
		return 0, 0, false
	}
	j, ok := nearest(f.lons, lon)
	if !ok {
		return 0, 0, false
	}
	return i, j, true
}

func (f *frame) bound(i, j int) orb.Bound {
	hy, hx := step(f.lats)/2, step(f.lons)/2
	return orb.Bound{
		Min: orb.Point{f.lons[j] - hx, f.lats[i] - hy},
		Max: orb.Point{f.lons[j] + hx, f.lats[i] + hy},
	}
}

// overlapping lists the cells whose extent intersects b, latitude-major.
func (f *frame) overlapping(b orb.Bound) [][2]int {
	hy, hx := step(f.lats)/2, step(f.lons)/2
	var out [][2]int
	for i, lat := range f.lats {
		if lat+hy <= b.Min[1] || lat-hy >= b.Max[1] {
			continue
		}
		for j, lon := range f.lons {
			if lon+hx <= b.Min[0] || lon-hx >= b.Max[0] {
				continue
			}
			out = append(out, [2]int{i, j})
		}
	}
	return out
}
