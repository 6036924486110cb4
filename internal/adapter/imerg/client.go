// Package imerg queries a GPM IMERG geospatial service over HTTP.
package imerg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"
)

const sourceName = "imerg"

// Client implements domain.PrecipitationSource against the IMERG query API.
type Client struct {
	baseURL    string
	token      string
	variable   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an IMERG client. rps <= 0 disables client-side rate limiting.
func NewClient(baseURL, token, variable string, timeout time.Duration, rps float64, metrics *observability.Metrics, logger *slog.Logger) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		variable: variable,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger,
	}
}

// PointSamples returns the half-hourly samples of the cell enclosing point.
func (c *Client) PointSamples(ctx context.Context, point domain.Geo, period domain.Period) ([]domain.Sample, error) {
	params := url.Values{
		"lat":      {strconv.FormatFloat(point.Lat, 'f', 6, 64)},
		"lon":      {strconv.FormatFloat(point.Lon, 'f', 6, 64)},
		"start":    {period.Start.Format(time.RFC3339)},
		"end":      {period.End.Format(time.RFC3339)},
		"variable": {c.variable},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/point?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var resp pointResponse
	if err := c.do(req, "point", &resp); err != nil {
		return nil, err
	}
	samples, err := toAccumulations(resp.series)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, domain.ErrNoData
	}
	return samples, nil
}

// GridCells returns every grid cell intersecting polygon with its samples.
func (c *Client) GridCells(ctx context.Context, polygon orb.Polygon, period domain.Period) ([]domain.Cell, error) {
	body, err := json.Marshal(cellsRequest{
		Polygon:  geojson.NewGeometry(polygon),
		Start:    period.Start,
		End:      period.End,
		Variable: c.variable,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cells request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cells", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp cellsResponse
	if err := c.do(req, "cells", &resp); err != nil {
		return nil, err
	}

	cells := make([]domain.Cell, 0, len(resp.Cells))
	for _, rc := range resp.Cells {
		samples, err := toAccumulations(series{Units: resp.Units, IntervalMinutes: resp.IntervalMinutes, Samples: rc.Samples})
		if err != nil {
			return nil, err
		}
		cells = append(cells, domain.Cell{
			Bound: orb.Bound{
				Min: orb.Point{rc.BBox[0], rc.BBox[1]},
				Max: orb.Point{rc.BBox[2], rc.BBox[3]},
			},
			Samples: samples,
		})
	}
	if len(cells) == 0 {
		return nil, domain.ErrNoData
	}
	return cells, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.SourceAPIDuration.WithLabelValues(sourceName).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.SourceRequests.WithLabelValues(sourceName, "nodata").Inc()
		return domain.ErrNoData
	case resp.StatusCode != http.StatusOK:
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("imerg API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.SourceRequests.WithLabelValues(sourceName, "error").Inc()
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	c.metrics.SourceRequests.WithLabelValues(sourceName, "success").Inc()
	return nil
}

// toAccumulations converts the service's values to millimeters accumulated
// over each sample's own interval. This is the only place rates are converted.
func toAccumulations(s series) ([]domain.Sample, error) {
	var factor float64
	switch s.Units {
	case "mm", "":
		factor = 1
	case "mm/hr", "mm/h":
		minutes := s.IntervalMinutes
		if minutes <= 0 {
			minutes = 30
		}
		factor = float64(minutes) / 60
	default:
		return nil, fmt.Errorf("unsupported units %q", s.Units)
	}

	out := make([]domain.Sample, 0, len(s.Samples))
	for _, v := range s.Samples {
		out = append(out, domain.Sample{Time: v.Time.UTC(), Value: v.Value * factor})
	}
	return out, nil
}

// IMERG API wire types.

type series struct {
	Units           string       `json:"units"`
	IntervalMinutes int          `json:"interval_minutes"`
	Samples         []wireSample `json:"samples"`
}

type wireSample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

type pointResponse struct {
	series
}

type cellsRequest struct {
	Polygon  *geojson.Geometry `json:"polygon"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Variable string            `json:"variable"`
}

type cellsResponse struct {
	Units           string     `json:"units"`
	IntervalMinutes int        `json:"interval_minutes"`
	Cells           []wireCell `json:"cells"`
}

type wireCell struct {
	BBox    [4]float64   `json:"bbox"` // [min_lon, min_lat, max_lon, max_lat]
	Samples []wireSample `json:"samples"`
}
