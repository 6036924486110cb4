package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ExtractDataset queries the source for every (period, region) pair of one
// granularity and assembles the result. Periods are processed in chunks; a
// chunk found in the checkpoint store is restored instead of re-queried.
func (p *Pipeline) ExtractDataset(ctx context.Context, run string, g domain.Granularity) (domain.Dataset, error) {
	periods := slices.Collect(p.interval.Periods(g, p.opts.Coverage))
	regions := p.catalog.Regions()
	nr := len(regions)
	results := make([]domain.Observation, len(periods)*nr)

	p.metrics.PeriodsCompleted.WithLabelValues(string(g)).Set(0)
	for chunk, start := 0, 0; start < len(periods); chunk, start = chunk+1, start+p.opts.ChunkPeriods {
		end := min(start+p.opts.ChunkPeriods, len(periods))
		out := results[start*nr : end*nr]

		if p.restoreChunk(ctx, run, g, chunk, periods[start:end], regions, out) {
			p.metrics.PeriodsCompleted.WithLabelValues(string(g)).Set(float64(end))
			p.ready.Store(true)
			continue
		}

		if err := p.extractChunk(ctx, periods[start:end], regions, out); err != nil {
			return domain.Dataset{}, err
		}
		p.saveChunk(ctx, run, g, chunk, out)

		p.metrics.PeriodsCompleted.WithLabelValues(string(g)).Set(float64(end))
		p.ready.Store(true)
		p.logger.Debug("chunk extracted",
			"granularity", g,
			"chunk", chunk,
			"from", periods[start].Label(),
			"to", periods[end-1].Label(),
		)
	}

	return domain.Assemble(g, p.interval, p.catalog, results)
}

// extractChunk fans the chunk out over a bounded worker pool. Each task
// writes only its own slot of out, so no locking is needed; Wait is the join
// barrier. Only cancellation is returned as an error.
func (p *Pipeline) extractChunk(ctx context.Context, periods []domain.Period, regions []domain.Region, out []domain.Observation) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.opts.Workers)

	nr := len(regions)
	for pi, period := range periods {
		for ri, region := range regions {
			if egCtx.Err() != nil {
				break
			}
			eg.Go(func() error {
				obs, err := p.extractOne(egCtx, region, period)
				if err != nil {
					return err
				}
				out[pi*nr+ri] = obs
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// extractOne produces the observation for one region and period. No-data is
// recorded as missing immediately; other errors are retried with exponential
// backoff and recorded as missing once retries are exhausted.
func (p *Pipeline) extractOne(ctx context.Context, region domain.Region, period domain.Period) (domain.Observation, error) {
	g := string(period.Granularity)
	start := time.Now()
	defer func() {
		p.metrics.ExtractDuration.WithLabelValues(g).Observe(time.Since(start).Seconds())
	}()

	backoff := p.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		value, n, err := p.query(ctx, region, period)
		if err == nil {
			return p.observed(region, period, value, n), nil
		}
		if ctx.Err() != nil {
			return domain.Observation{}, ctx.Err()
		}
		if errors.Is(err, domain.ErrNoData) {
			return p.observed(region, period, nil, 0), nil
		}
		if attempt >= p.opts.RetryMax {
			p.logger.Warn("extraction failed, recording missing value",
				"stage", "extract",
				"region", region.Name,
				"period", period.Label(),
				"granularity", g,
				"attempts", attempt+1,
				"error", err,
			)
			return p.observed(region, period, nil, 0), nil
		}

		p.metrics.ExtractRetries.Inc()
		p.logger.Debug("retrying extraction",
			"region", region.Name,
			"period", period.Label(),
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		if !sleepWithContext(ctx, backoff) {
			return domain.Observation{}, ctx.Err()
		}
		backoff = nextBackoff(backoff, p.opts.MaxBackoff)
	}
}

// query runs one bounded attempt against the source. Polygon regions use
// area-weighted aggregation; point regions sum the enclosing cell's samples.
func (p *Pipeline) query(ctx context.Context, region domain.Region, period domain.Period) (*float64, int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	defer cancel()

	if region.AreaWeighted() {
		cells, err := p.source.GridCells(ctx, region.Polygon, period)
		if err != nil {
			return nil, 0, fmt.Errorf("grid cells for %s %s: %w", region.Name, period, err)
		}
		v, n := domain.AreaWeighted(cells, region.Polygon, period)
		return v, n, nil
	}

	samples, err := p.source.PointSamples(ctx, region.Location, period)
	if err != nil {
		return nil, 0, fmt.Errorf("point samples for %s %s: %w", region.Name, period, err)
	}
	v, n := domain.SumSamples(samples, period)
	return v, n, nil
}

func (p *Pipeline) observed(region domain.Region, period domain.Period, value *float64, n int) domain.Observation {
	outcome := "value"
	if value == nil {
		outcome = "missing"
	}
	p.metrics.Observations.WithLabelValues(string(period.Granularity), outcome).Inc()
	return domain.NewObservation(region.Name, period, value, n)
}

// restoreChunk fills out from the checkpoint store. A stored chunk is used
// only when it holds exactly the expected (period, region) pairs in order.
func (p *Pipeline) restoreChunk(ctx context.Context, run string, g domain.Granularity, chunk int, periods []domain.Period, regions []domain.Region, out []domain.Observation) bool {
	if p.opts.Checkpoint == nil {
		return false
	}
	obs, ok, err := p.opts.Checkpoint.LoadChunk(ctx, run, g, chunk)
	if err != nil {
		p.logger.Warn("checkpoint read failed, re-extracting", "granularity", g, "chunk", chunk, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if !chunkMatches(obs, periods, regions) {
		p.logger.Warn("checkpoint chunk does not match its periods, re-extracting", "granularity", g, "chunk", chunk)
		return false
	}
	copy(out, obs)
	p.metrics.CheckpointRestores.Inc()
	p.logger.Info("chunk restored from checkpoint", "granularity", g, "chunk", chunk)
	return true
}

func chunkMatches(obs []domain.Observation, periods []domain.Period, regions []domain.Region) bool {
	nr := len(regions)
	if len(obs) != len(periods)*nr {
		return false
	}
	for i, o := range obs {
		want := periods[i/nr]
		if o.Period.Granularity != want.Granularity ||
			!o.Period.Start.Equal(want.Start) ||
			!o.Period.End.Equal(want.End) ||
			o.Region != regions[i%nr].Name {
			return false
		}
	}
	return true
}

func (p *Pipeline) saveChunk(ctx context.Context, run string, g domain.Granularity, chunk int, obs []domain.Observation) {
	if p.opts.Checkpoint == nil {
		return
	}
	if err := p.opts.Checkpoint.SaveChunk(ctx, run, g, chunk, obs); err != nil {
		p.logger.Warn("checkpoint write failed", "granularity", g, "chunk", chunk, "error", err)
	}
}

// Exponential backoff: start at RetryBackoff, double each retry, cap at MaxBackoff.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
