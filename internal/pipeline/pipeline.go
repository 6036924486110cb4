package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
)

// DatasetLoader writes a complete dataset to one destination.
type DatasetLoader interface {
	Name() string
	LoadDataset(ctx context.Context, ds domain.Dataset) error
}

// Checkpoint persists completed chunks of a run so an interrupted run can
// resume without re-querying the source.
type Checkpoint interface {
	LoadChunk(ctx context.Context, run string, g domain.Granularity, chunk int) ([]domain.Observation, bool, error)
	SaveChunk(ctx context.Context, run string, g domain.Granularity, chunk int, obs []domain.Observation) error
	Clear(ctx context.Context, run string) error
}

// Options tunes extraction. Zero values fall back to the defaults below.
type Options struct {
	Granularities []domain.Granularity
	Coverage      domain.MonthlyCoverage

	Workers        int
	RetryMax       int
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	ChunkPeriods   int

	// SourceName identifies the source in the run fingerprint.
	SourceName string
	Checkpoint Checkpoint
}

func (o Options) withDefaults() Options {
	if len(o.Granularities) == 0 {
		o.Granularities = []domain.Granularity{domain.Daily, domain.Monthly}
	}
	if o.Coverage == "" {
		o.Coverage = domain.CoverYears
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	if o.ChunkPeriods <= 0 {
		o.ChunkPeriods = 31
	}
	return o
}

// Pipeline runs extract, assemble, and export once over the study interval.
type Pipeline struct {
	catalog  *domain.Catalog
	interval domain.StudyInterval
	source   domain.PrecipitationSource
	loaders  []DatasetLoader
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options
	ready    atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(
	catalog *domain.Catalog,
	interval domain.StudyInterval,
	source domain.PrecipitationSource,
	loaders []DatasetLoader,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Pipeline {
	return &Pipeline{
		catalog:  catalog,
		interval: interval,
		source:   source,
		loaders:  loaders,
		logger:   logger,
		metrics:  metrics,
		opts:     opts.withDefaults(),
	}
}

// CheckReadiness returns nil once the run has completed at least one chunk
// of extraction.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any extraction yet")
	}
	return nil
}

// Fingerprint identifies the run inputs. Checkpoints written under one
// fingerprint are never reused by a run with different inputs.
func (p *Pipeline) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s", p.interval, p.opts.Coverage, p.opts.ChunkPeriods, p.opts.SourceName, p.catalog.Fingerprint())
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Run extracts and exports every configured granularity. Cancellation aborts
// the run and is returned as an error. Export failures affect only their own
// dataset; they are joined and returned after all datasets were attempted.
func (p *Pipeline) Run(ctx context.Context) error {
	run := p.Fingerprint()
	p.logger.Info("pipeline started",
		"interval", p.interval.String(),
		"regions", p.catalog.Len(),
		"workers", p.opts.Workers,
		"run", run,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	start := time.Now()

	var exportErrs []error
	for _, g := range p.opts.Granularities {
		ds, err := p.ExtractDataset(ctx, run, g)
		if err != nil {
			return fmt.Errorf("extract %s: %w", g, err)
		}
		p.logger.Info("dataset assembled",
			"granularity", g,
			"rows", ds.Len(),
			"missing", ds.MissingCount(),
		)
		exportErrs = append(exportErrs, p.export(ctx, ds)...)
	}

	if len(exportErrs) == 0 && p.opts.Checkpoint != nil {
		if err := p.opts.Checkpoint.Clear(ctx, run); err != nil {
			p.logger.Warn("clear checkpoint failed", "run", run, "error", err)
		}
	}

	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err := errors.Join(exportErrs...); err != nil {
		p.logger.Error("pipeline finished with export errors", "error", err)
		return err
	}
	p.logger.Info("pipeline finished", "duration", time.Since(start))
	return nil
}

// export hands the dataset to every loader. A failing loader does not stop
// the others.
func (p *Pipeline) export(ctx context.Context, ds domain.Dataset) []error {
	var errs []error
	g := string(ds.Granularity)
	for _, l := range p.loaders {
		if err := l.LoadDataset(ctx, ds); err != nil {
			p.logger.Error("export failed", "granularity", g, "sink", l.Name(), "error", err)
			p.metrics.ExportErrors.WithLabelValues(g, l.Name()).Inc()
			errs = append(errs, fmt.Errorf("export %s to %s: %w", g, l.Name(), err))
			continue
		}
		p.metrics.DatasetsExported.WithLabelValues(g, l.Name()).Inc()
		p.logger.Info("dataset exported", "granularity", g, "sink", l.Name(), "rows", ds.Len())
	}
	return errs
}
