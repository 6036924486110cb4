package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the rainfall pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Extraction metrics.
	Observations       *prometheus.CounterVec   // labels: granularity, outcome={value,missing}
	ExtractRetries     prometheus.Counter       // attempts beyond the first
	ExtractDuration    *prometheus.HistogramVec // labels: granularity
	PeriodsCompleted   *prometheus.GaugeVec     // labels: granularity
	CheckpointRestores prometheus.Counter

	// Source metrics.
	SourceRequests    *prometheus.CounterVec   // labels: source, outcome={success,nodata,error}
	SourceAPIDuration *prometheus.HistogramVec // labels: source
	SourceCache       *prometheus.CounterVec   // labels: result={hit,miss}

	// Export metrics.
	DatasetsExported *prometheus.CounterVec // labels: granularity, sink
	ExportErrors     *prometheus.CounterVec // labels: granularity, sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.Observations,
		m.ExtractRetries,
		m.ExtractDuration,
		m.PeriodsCompleted,
		m.CheckpointRestores,
		m.SourceRequests,
		m.SourceAPIDuration,
		m.SourceCache,
		m.DatasetsExported,
		m.ExportErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainfall_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainfall_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-assemble-export run.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "observations_total",
			Help:      "Observations produced by granularity and outcome.",
		}, []string{"granularity", "outcome"}),
		ExtractRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "extract_retries_total",
			Help:      "Source query retries after transient failures.",
		}),
		ExtractDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rainfall_etl",
			Name:      "extract_duration_seconds",
			Help:      "Duration of one (region, period) extraction including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"granularity"}),
		PeriodsCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rainfall_etl",
			Name:      "periods_completed",
			Help:      "Periods fully extracted in the current run.",
		}, []string{"granularity"}),
		CheckpointRestores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "checkpoint_restored_chunks_total",
			Help:      "Chunks restored from the checkpoint store instead of re-extracted.",
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "source_requests_total",
			Help:      "Precipitation source requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rainfall_etl",
			Name:      "source_api_duration_seconds",
			Help:      "Precipitation source request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "source_cache_total",
			Help:      "Source cache lookups by result.",
		}, []string{"result"}),
		DatasetsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "datasets_exported_total",
			Help:      "Datasets written by granularity and sink.",
		}, []string{"granularity", "sink"}),
		ExportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainfall_etl",
			Name:      "export_errors_total",
			Help:      "Dataset export failures by granularity and sink.",
		}, []string{"granularity", "sink"}),
	}
}
