package power

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, "precipitation", 5*time.Second, 0,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func month() domain.Period {
	s := time.Date(2009, time.March, 1, 0, 0, 0, 0, time.UTC)
	return domain.Period{Start: s, End: s.AddDate(0, 1, 0), Granularity: domain.Monthly}
}

const body = `{
  "header": {"fill_value": -999.0},
  "properties": {"parameter": {"PRECTOTCORR": {
    "20090302": 1.25, "20090301": 0.5, "20090315": -999.0, "20090331": 4.0
  }}}
}`

func TestClient_PointSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "PRECTOTCORR", q.Get("parameters"))
		assert.Equal(t, "16.1167", q.Get("latitude"))
		assert.Equal(t, "73.9667", q.Get("longitude"))
		assert.Equal(t, "20090301", q.Get("start"))
		assert.Equal(t, "20090331", q.Get("end"))
		assert.Equal(t, "JSON", q.Get("format"))
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	samples, err := testClient(srv.URL).PointSamples(context.Background(), domain.Geo{Lat: 16.1167, Lon: 73.9667}, month())
	require.NoError(t, err)

	require.Len(t, samples, 3, "fill value dropped")
	assert.Equal(t, time.Date(2009, 3, 1, 0, 0, 0, 0, time.UTC), samples[0].Time)
	assert.InDelta(t, 0.5, samples[0].Value, 0)
	assert.InDelta(t, 1.25, samples[1].Value, 0)
	assert.InDelta(t, 4.0, samples[2].Value, 0)

	total, n := domain.SumSamples(samples, month())
	require.NotNil(t, total)
	assert.InDelta(t, 5.75, *total, 1e-12)
	assert.Equal(t, 3, n)
}

func TestClient_PointSamples_AllFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"properties":{"parameter":{"PRECTOTCORR":{"20090315":-999}}}}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PointSamples(context.Background(), domain.Geo{Lat: 16.1, Lon: 73.9}, month())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestClient_PointSamples_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PointSamples(context.Background(), domain.Geo{Lat: 16.1, Lon: 73.9}, month())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_GridCells_SamplesCentroid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "16.5500", r.URL.Query().Get("latitude"))
		assert.Equal(t, "74.0500", r.URL.Query().Get("longitude"))
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	poly := orb.Polygon{{{74.0, 16.5}, {74.1, 16.5}, {74.1, 16.6}, {74.0, 16.6}, {74.0, 16.5}}}
	cells, err := testClient(srv.URL).GridCells(context.Background(), poly, month())
	require.NoError(t, err)

	require.Len(t, cells, 1)
	assert.Equal(t, poly.Bound(), cells[0].Bound)
	v, _ := domain.AreaWeighted(cells, poly, month())
	require.NotNil(t, v)
	assert.InDelta(t, 5.75, *v, 1e-9)
}

func TestNewClient_CustomParameter(t *testing.T) {
	c := NewClient("http://x", "PRECTOT", time.Second, 0, observability.NewMetricsForTesting(), slog.Default())
	assert.Equal(t, "PRECTOT", c.parameter)
}
