package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// catalogFile is the on-disk layout of a region catalog.
type catalogFile struct {
	Basin struct {
		Name     string            `json:"name"`
		Locality string            `json:"locality"`
		BBox     *bbox             `json:"bbox"`
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"basin"`
	Regions []regionEntry `json:"regions"`
}

type bbox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

type regionEntry struct {
	Name          string            `json:"name"`
	Lat           *float64          `json:"lat"`
	Lon           *float64          `json:"lon"`
	Polygon       *geojson.Geometry `json:"polygon"`
	AreaKm2       float64           `json:"area_km2"`
	ElevationM    float64           `json:"elevation_m"`
	Description   string            `json:"description"`
	BasinFraction float64           `json:"basin_fraction"`
}

// LoadCatalog reads and validates a region catalog file.
func LoadCatalog(path string) (*domain.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open REGIONS_FILE: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return ParseCatalog(f)
}

// ParseCatalog decodes a catalog from JSON. Every validation failure is a
// *domain.ConfigError.
func ParseCatalog(r io.Reader) (*domain.Catalog, error) {
	var cf catalogFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cf); err != nil {
		return nil, &domain.ConfigError{Field: "regions", Msg: "decode catalog: " + err.Error()}
	}

	basin := domain.Basin{Name: cf.Basin.Name, Locality: cf.Basin.Locality}
	switch {
	case cf.Basin.Geometry != nil:
		poly, ok := polygonOf(cf.Basin.Geometry)
		if !ok {
			return nil, &domain.ConfigError{Field: "basin", Msg: "basin geometry must be a Polygon"}
		}
		basin.Boundary = poly
	case cf.Basin.BBox != nil:
		b := cf.Basin.BBox
		if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
			return nil, &domain.ConfigError{Field: "basin", Msg: "basin bbox min must be below max"}
		}
		basin.Boundary = domain.BoundaryFromBBox(b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	}

	regions := make([]domain.Region, 0, len(cf.Regions))
	for _, e := range cf.Regions {
		r, err := e.region()
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return domain.NewCatalog(basin, regions)
}

func (e regionEntry) region() (domain.Region, error) {
	r := domain.Region{
		Name:          e.Name,
		AreaKm2:       e.AreaKm2,
		ElevationM:    e.ElevationM,
		Description:   e.Description,
		BasinFraction: e.BasinFraction,
	}
	if e.Polygon != nil {
		poly, ok := polygonOf(e.Polygon)
		if !ok {
			return r, &domain.ConfigError{Field: "regions", Msg: fmt.Sprintf("region %q polygon must be a Polygon", e.Name)}
		}
		r.Polygon = poly
	}
	switch {
	case e.Lat != nil && e.Lon != nil:
		r.Location = domain.Geo{Lat: *e.Lat, Lon: *e.Lon}
	case r.Polygon == nil:
		return r, &domain.ConfigError{Field: "regions", Msg: fmt.Sprintf("region %q needs lat/lon or a polygon", e.Name)}
	}
	return r, nil
}

func polygonOf(g *geojson.Geometry) (orb.Polygon, bool) {
	poly, ok := g.Geometry().(orb.Polygon)
	return poly, ok
}
