package config

import (
	"strings"
	"testing"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Panchganga(t *testing.T) {
	c, err := LoadCatalog("../../config/panchganga.json")
	require.NoError(t, err)

	require.Equal(t, 12, c.Len())
	regions := c.Regions()
	assert.Equal(t, "Karvir", regions[0].Name)
	assert.Equal(t, "Ajra", regions[11].Name)
	assert.Equal(t, "Panchganga", c.Basin().Name)
	assert.Equal(t, "Kolhapur, Maharashtra", c.Basin().Locality)

	ajra, ok := c.Region("Ajra")
	require.True(t, ok)
	assert.InDelta(t, 16.1167, ajra.Location.Lat, 1e-9)
	assert.InDelta(t, 73.9667, ajra.Location.Lon, 1e-9)
	assert.InDelta(t, 539.0, ajra.AreaKm2, 1e-9)
	assert.InDelta(t, 543.0, ajra.ElevationM, 1e-9)
	assert.False(t, ajra.AreaWeighted())
}

func TestParseCatalog_PolygonRegion(t *testing.T) {
	const doc = `{
	  "basin": {"name": "Test", "bbox": {"min_lat": 16, "max_lat": 17, "min_lon": 74, "max_lon": 74.7}},
	  "regions": [
	    {"name": "Inside", "polygon": {"type": "Polygon", "coordinates": [[[74.0,16.5],[74.1,16.5],[74.1,16.6],[74.0,16.6],[74.0,16.5]]]}},
	    {"name": "Straddle", "polygon": {"type": "Polygon", "coordinates": [[[74.6,16.5],[74.8,16.5],[74.8,16.6],[74.6,16.6],[74.6,16.5]]]}}
	  ]
	}`
	c, err := ParseCatalog(strings.NewReader(doc))
	require.NoError(t, err)

	inside, _ := c.Region("Inside")
	assert.True(t, inside.AreaWeighted())
	assert.InDelta(t, 1.0, inside.BasinFraction, 1e-9)
	assert.InDelta(t, 74.05, inside.Location.Lon, 1e-6)
	assert.InDelta(t, 16.55, inside.Location.Lat, 1e-6)

	straddle, _ := c.Region("Straddle")
	assert.InDelta(t, 0.5, straddle.BasinFraction, 1e-6)
}

func TestParseCatalog_GeoJSONBasin(t *testing.T) {
	const doc = `{
	  "basin": {"name": "Tri", "geometry": {"type": "Polygon", "coordinates": [[[74,16],[75,16],[74,17],[74,16]]]}},
	  "regions": [{"name": "Corner", "lat": 16.2, "lon": 74.2}]
	}`
	c, err := ParseCatalog(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestParseCatalog_Errors(t *testing.T) {
	const basin = `"basin": {"name": "B", "bbox": {"min_lat": 16, "max_lat": 17, "min_lon": 74, "max_lon": 75}}`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"malformed", `{"basin": `, "decode"},
		{"unknown field", `{` + basin + `, "regions": [{"name": "A", "lat": 16.5, "lon": 74.5, "height": 3}]}`, "decode"},
		{"no basin", `{"basin": {"name": "B"}, "regions": [{"name": "A", "lat": 16.5, "lon": 74.5}]}`, "basin boundary"},
		{"inverted bbox", `{"basin": {"bbox": {"min_lat": 17, "max_lat": 16, "min_lon": 74, "max_lon": 75}}, "regions": []}`, "bbox"},
		{"empty", `{` + basin + `, "regions": []}`, "empty"},
		{"no location", `{` + basin + `, "regions": [{"name": "A"}]}`, "lat/lon or a polygon"},
		{"duplicate", `{` + basin + `, "regions": [{"name": "A", "lat": 16.5, "lon": 74.5}, {"name": "A", "lat": 16.6, "lon": 74.5}]}`, "duplicate"},
		{"out of range", `{` + basin + `, "regions": [{"name": "A", "lat": 96.5, "lon": 74.5}]}`, "invalid coordinate"},
		{"outside basin", `{` + basin + `, "regions": [{"name": "A", "lat": 18.5, "lon": 74.5}]}`, "outside basin"},
		{"not a polygon", `{` + basin + `, "regions": [{"name": "A", "polygon": {"type": "Point", "coordinates": [74.5, 16.5]}}]}`, "must be a Polygon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, domain.IsConfigError(err), "got %T", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog("does-not-exist.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGIONS_FILE")
}
