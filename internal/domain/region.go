package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point converts the coordinate to an orb point (lon, lat order).
func (g Geo) Point() orb.Point {
	return orb.Point{g.Lon, g.Lat}
}

// Valid reports whether the coordinate is finite and within WGS-84 bounds.
func (g Geo) Valid() bool {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lon) || math.IsInf(g.Lat, 0) || math.IsInf(g.Lon, 0) {
		return false
	}
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// Region is an administrative sub-unit of the basin. Regions are immutable
// once the catalog is built.
type Region struct {
	Name        string
	Location    Geo
	Polygon     orb.Polygon // nil for point regions
	AreaKm2     float64
	ElevationM  float64
	Description string

	// BasinFraction is the share of the region's area inside the basin
	// boundary, in [0, 1]. Zero when unknown.
	BasinFraction float64
}

// AreaWeighted reports whether the region is aggregated over a polygon
// rather than sampled at its representative point.
func (r Region) AreaWeighted() bool {
	return len(r.Polygon) > 0
}

// Basin is the hydrological catchment boundary.
type Basin struct {
	Name     string
	Locality string
	Boundary orb.Polygon
}

// Bound returns the bounding box of the basin boundary.
func (b Basin) Bound() orb.Bound {
	return b.Boundary.Bound()
}

// Contains reports whether a point lies inside the basin boundary.
func (b Basin) Contains(g Geo) bool {
	return planar.PolygonContains(b.Boundary, g.Point())
}

// BoundaryFromBBox builds a rectangular basin boundary.
func BoundaryFromBBox(minLat, maxLat, minLon, maxLon float64) orb.Polygon {
	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}.ToPolygon()
}

// Catalog is the ordered, validated set of regions for one basin.
type Catalog struct {
	basin   Basin
	regions []Region
	index   map[string]int
}

// NewCatalog validates the regions and basin and returns a catalog that
// preserves the given order. All problems are reported as *ConfigError.
func NewCatalog(basin Basin, regions []Region) (*Catalog, error) {
	if len(basin.Boundary) == 0 || len(basin.Boundary[0]) < 4 {
		return nil, configErrorf("basin", "basin boundary geometry is required")
	}
	if len(regions) == 0 {
		return nil, configErrorf("regions", "region catalog is empty")
	}

	c := &Catalog{
		basin:   basin,
		regions: make([]Region, len(regions)),
		index:   make(map[string]int, len(regions)),
	}
	for i, r := range regions {
		if r.Name == "" {
			return nil, configErrorf("regions", "region %d has no name", i)
		}
		if _, dup := c.index[r.Name]; dup {
			return nil, configErrorf("regions", "duplicate region %q", r.Name)
		}
		if err := validateRegion(basin, &r); err != nil {
			return nil, err
		}
		c.index[r.Name] = i
		c.regions[i] = r
	}
	return c, nil
}

func validateRegion(basin Basin, r *Region) error {
	if r.AreaWeighted() {
		ring := r.Polygon[0]
		if len(ring) < 4 {
			return configErrorf("regions", "region %q polygon needs at least 4 points", r.Name)
		}
		for _, p := range ring {
			if !(Geo{Lat: p[1], Lon: p[0]}).Valid() {
				return configErrorf("regions", "region %q polygon has invalid coordinate %v", r.Name, p)
			}
		}
		if polygonArea(r.Polygon) <= 0 {
			return configErrorf("regions", "region %q polygon has no area", r.Name)
		}
		if r.Location == (Geo{}) {
			c, _ := planar.CentroidArea(r.Polygon)
			r.Location = Geo{Lat: c[1], Lon: c[0]}
		}
		if r.BasinFraction == 0 {
			r.BasinFraction = basinFraction(basin, r.Polygon)
		}
		if r.BasinFraction <= 0 {
			return configErrorf("regions", "region %q does not intersect the basin", r.Name)
		}
	}

	if !r.Location.Valid() {
		return configErrorf("regions", "region %q has invalid coordinate (%v, %v)", r.Name, r.Location.Lat, r.Location.Lon)
	}
	if !r.AreaWeighted() && !basin.Contains(r.Location) {
		return configErrorf("regions", "region %q at (%v, %v) lies outside basin %q",
			r.Name, r.Location.Lat, r.Location.Lon, basin.Name)
	}
	if r.BasinFraction < 0 || r.BasinFraction > 1 {
		return configErrorf("regions", "region %q basin fraction %v outside [0, 1]", r.Name, r.BasinFraction)
	}
	return nil
}

// basinFraction clips the polygon to the basin bounding box and returns the
// retained share of its area.
func basinFraction(basin Basin, poly orb.Polygon) float64 {
	total := polygonArea(poly)
	if total <= 0 {
		return 0
	}
	clipped := clip.Polygon(basin.Bound(), poly.Clone())
	if len(clipped) == 0 {
		return 0
	}
	return math.Min(1, polygonArea(clipped)/total)
}

// Basin returns the basin boundary the catalog was validated against.
func (c *Catalog) Basin() Basin {
	return c.basin
}

// Regions returns the regions in catalog order. The returned slice is a copy.
func (c *Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Len returns the number of regions.
func (c *Catalog) Len() int {
	return len(c.regions)
}

// Order returns the catalog position of a region, used as the tie-break key
// when sorting observations.
func (c *Catalog) Order(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Region looks up a region by name.
func (c *Catalog) Region(name string) (Region, bool) {
	i, ok := c.index[name]
	if !ok {
		return Region{}, false
	}
	return c.regions[i], true
}

// Fingerprint identifies the catalog content for checkpoint keys.
func (c *Catalog) Fingerprint() string {
	s := c.basin.Name
	for _, r := range c.regions {
		s += fmt.Sprintf("|%s:%.6f,%.6f:%.0f", r.Name, r.Location.Lat, r.Location.Lon, polygonArea(r.Polygon))
	}
	return s
}

// polygonArea returns the geodesic area of a polygon in m².
func polygonArea(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return math.Abs(geo.Area(p))
}
