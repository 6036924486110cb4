// Package cache memoizes precipitation source responses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Store is a byte-oriented key/value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedSource wraps a PrecipitationSource with a Store. Store failures are
// logged and bypassed; they never fail a query.
type CachedSource struct {
	inner   domain.PrecipitationSource
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedSource creates a cache decorator around a source.
func NewCachedSource(inner domain.PrecipitationSource, store Store, metrics *observability.Metrics, logger *slog.Logger) *CachedSource {
	return &CachedSource{inner: inner, store: store, metrics: metrics, logger: logger}
}

func (c *CachedSource) PointSamples(ctx context.Context, point domain.Geo, period domain.Period) ([]domain.Sample, error) {
	key := fmt.Sprintf("pt:%.6f,%.6f|%s", point.Lat, point.Lon, windowKey(period))

	var cached []domain.Sample
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}
	samples, err := c.inner.PointSamples(ctx, point, period)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so no-data windows are re-queried next run.
	if len(samples) > 0 {
		c.save(ctx, key, samples)
	}
	return samples, nil
}

func (c *CachedSource) GridCells(ctx context.Context, polygon orb.Polygon, period domain.Period) ([]domain.Cell, error) {
	sum := sha256.Sum256([]byte(wkt.MarshalString(polygon)))
	key := "poly:" + hex.EncodeToString(sum[:8]) + "|" + windowKey(period)

	var cached []cachedCell
	if c.lookup(ctx, key, &cached) {
		cells := make([]domain.Cell, len(cached))
		for i, cc := range cached {
			cells[i] = domain.Cell{
				Bound:   orb.Bound{Min: orb.Point{cc.BBox[0], cc.BBox[1]}, Max: orb.Point{cc.BBox[2], cc.BBox[3]}},
				Samples: cc.Samples,
			}
		}
		return cells, nil
	}
	cells, err := c.inner.GridCells(ctx, polygon, period)
	if err != nil {
		return nil, err
	}
	if len(cells) > 0 {
		wire := make([]cachedCell, len(cells))
		for i, cell := range cells {
			wire[i] = cachedCell{
				BBox:    [4]float64{cell.Bound.Min[0], cell.Bound.Min[1], cell.Bound.Max[0], cell.Bound.Max[1]},
				Samples: cell.Samples,
			}
		}
		c.save(ctx, key, wire)
	}
	return cells, nil
}

func (c *CachedSource) lookup(ctx context.Context, key string, out any) bool {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if ok {
		if err := json.Unmarshal(b, out); err == nil {
			c.metrics.SourceCache.WithLabelValues("hit").Inc()
			return true
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	}
	c.metrics.SourceCache.WithLabelValues("miss").Inc()
	return false
}

func (c *CachedSource) save(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, b); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func windowKey(p domain.Period) string {
	return p.Start.UTC().Format(time.RFC3339) + "/" + p.End.UTC().Format(time.RFC3339)
}

type cachedCell struct {
	BBox    [4]float64      `json:"bbox"`
	Samples []domain.Sample `json:"samples"`
}
