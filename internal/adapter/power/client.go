// Package power reads daily precipitation from the NASA POWER point API.
//
// POWER serves one daily accumulation per point, so each day is a single
// sample stamped at 00:00 UTC. Polygons are sampled at their centroid.
package power

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/time/rate"
)

const (
	sourceName       = "power"
	defaultParameter = "PRECTOTCORR"
	fillValue        = -999.0
)

// Client implements domain.PrecipitationSource against NASA POWER.
type Client struct {
	baseURL    string
	parameter  string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a POWER client. The generic variable name
// "precipitation" maps to the corrected total precipitation parameter.
func NewClient(baseURL, variable string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if variable == "" || variable == "precipitation" {
		variable = defaultParameter
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:    baseURL,
		parameter:  variable,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    metrics,
		logger:     logger,
	}
}

// PointSamples returns one sample per day of the period.
func (c *Client) PointSamples(ctx context.Context, point domain.Geo, period domain.Period) ([]domain.Sample, error) {
	last := period.End.AddDate(0, 0, -1)
	params := url.Values{
		"parameters": {c.parameter},
		"community":  {"AG"},
		"latitude":   {strconv.FormatFloat(point.Lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(point.Lon, 'f', 4, 64)},
		"start":      {period.Start.Format("20060102")},
		"end":        {last.Format("20060102")},
		"format":     {"JSON"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	fill := fillValue
	if resp.Header.FillValue != nil {
		fill = *resp.Header.FillValue
	}
	series := resp.Properties.Parameter[c.parameter]
	samples := make([]domain.Sample, 0, len(series))
	for k, v := range series {
		if v == fill {
			continue
		}
		d, err := time.Parse("20060102", k)
		if err != nil {
			return nil, fmt.Errorf("invalid date key %q: %w", k, err)
		}
		samples = append(samples, domain.Sample{Time: d, Value: v})
	}
	if len(samples) == 0 {
		return nil, domain.ErrNoData
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
	return samples, nil
}

// GridCells samples the polygon centroid and reports it as one cell covering
// the polygon's bounds.
func (c *Client) GridCells(ctx context.Context, polygon orb.Polygon, period domain.Period) ([]domain.Cell, error) {
	centroid, _ := planar.CentroidArea(polygon)
	samples, err := c.PointSamples(ctx, domain.Geo{Lat: centroid[1], Lon: centroid[0]}, period)
	if err != nil {
		return nil, err
	}
	return []domain.Cell{{Bound: polygon.Bound(), Samples: samples}}, nil
}

func (c *Client) do(req *http.Request) (*response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceAPIDuration.WithLabelValues(sourceName).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		return nil, fmt.Errorf("power request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.SourceRequests.WithLabelValues(sourceName, "nodata").Inc()
		return nil, domain.ErrNoData
	case resp.StatusCode != http.StatusOK:
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("power API error: status %d: %s", resp.StatusCode, body)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.metrics.SourceRequests.WithLabelValues(sourceName, "success").Inc()
	return &out, nil
}

// POWER API response types.

type response struct {
	Header struct {
		FillValue *float64 `json:"fill_value"`
	} `json:"header"`
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}
