package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/cache"
	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/basin-rainfall-etl/internal/adapter/http"
	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/imerg"
	kafkaadapter "github.com/couchcryptid/basin-rainfall-etl/internal/adapter/kafka"
	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/postgres"
	"github.com/couchcryptid/basin-rainfall-etl/internal/adapter/power"
	"github.com/couchcryptid/basin-rainfall-etl/internal/checkpoint"
	"github.com/couchcryptid/basin-rainfall-etl/internal/config"
	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	"github.com/couchcryptid/basin-rainfall-etl/internal/observability"
	"github.com/couchcryptid/basin-rainfall-etl/internal/pipeline"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat).With("run_id", runID)
	metrics := observability.NewMetrics()

	catalog, err := config.LoadCatalog(cfg.RegionsFile)
	if err != nil {
		logger.Error("failed to load region catalog", "path", cfg.RegionsFile, "error", err)
		return 1
	}
	logger.Info("region catalog loaded", "basin", catalog.Basin().Name, "regions", catalog.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	source, err := buildSource(ctx, cfg, catalog, metrics, logger, &closers)
	if err != nil {
		logger.Error("failed to initialize precipitation source", "kind", cfg.SourceKind, "error", err)
		return 1
	}

	loaders, err := buildLoaders(ctx, cfg, runID, logger, &closers)
	if err != nil {
		logger.Error("failed to initialize sinks", "error", err)
		return 1
	}

	opts := pipeline.Options{
		Granularities: cfg.Granularities,
		Coverage:      cfg.MonthlyCoverage,
		Workers:       cfg.Workers,
		RetryMax:      cfg.RetryMax,
		RetryBackoff:  cfg.RetryBackoff,
		// Leave headroom for the client's own timeout and retries.
		AttemptTimeout: 2 * cfg.SourceTimeout,
		ChunkPeriods:   cfg.ChunkPeriods,
		SourceName:     sourceIdentity(cfg),
	}

	var ckpt *checkpoint.Store
	if cfg.CheckpointDir != "" {
		ckpt, err = checkpoint.Open(cfg.CheckpointDir, logger)
		if err != nil {
			logger.Error("failed to open checkpoint store", "dir", cfg.CheckpointDir, "error", err)
			return 1
		}
		closers = append(closers, ckpt)
		opts.Checkpoint = ckpt
	}

	p := pipeline.New(catalog, cfg.Interval, source, loaders, logger, metrics, opts)

	if ckpt != nil {
		fp := p.Fingerprint()
		for _, g := range cfg.Granularities {
			if last, ok, err := ckpt.LastChunk(fp, g); err == nil && ok {
				logger.Info("resuming from checkpoint", "fingerprint", fp, "granularity", g, "last_chunk", last)
			}
		}
	}

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return 1
	}
	logger.Info("run complete", "output_dir", cfg.OutputDir)
	return 0
}

func buildSource(
	ctx context.Context,
	cfg *config.Config,
	catalog *domain.Catalog,
	metrics *observability.Metrics,
	logger *slog.Logger,
	closers *[]io.Closer,
) (domain.PrecipitationSource, error) {
	var source domain.PrecipitationSource
	switch cfg.SourceKind {
	case config.SourceIMERG:
		source = imerg.NewClient(cfg.SourceURL, cfg.SourceToken, cfg.SourceVariable,
			cfg.SourceTimeout, cfg.SourceRPS, metrics, logger)
	case config.SourcePower:
		for _, r := range catalog.Regions() {
			if r.AreaWeighted() {
				logger.Warn("power source samples polygon regions at their centroid", "region", r.Name)
			}
		}
		source = power.NewClient(cfg.SourceURL, cfg.SourceVariable, cfg.SourceTimeout, cfg.SourceRPS, metrics, logger)
	case config.SourceNetCDF:
		// The local archive is cheap to re-read, so it is never cached.
		return netcdf.NewArchive(cfg.NetCDFDir, cfg.SourceVariable, 0, logger)
	}

	switch cfg.CacheKind {
	case config.CacheMemory:
		logger.Info("source cache enabled", "kind", "memory", "size", cfg.CacheSize)
		return cache.NewCachedSource(source, cache.NewMemoryStore(cfg.CacheSize), metrics, logger), nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		*closers = append(*closers, client)
		store := cache.NewRedisStore(client, "rainfall:"+cfg.SourceKind+":", cfg.RedisTTL)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, cache reads will miss", "addr", cfg.RedisAddr, "error", err)
		}
		logger.Info("source cache enabled", "kind", "redis", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		return cache.NewCachedSource(source, store, metrics, logger), nil
	default:
		return source, nil
	}
}

func buildLoaders(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger, closers *[]io.Closer) ([]pipeline.DatasetLoader, error) {
	loaders := []pipeline.DatasetLoader{csvfile.NewExporter(cfg.OutputDir, cfg.OutputCompress, logger)}

	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg, runID, logger)
		*closers = append(*closers, w)
		loaders = append(loaders, w)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error { store.Close(); return nil }))
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		loaders = append(loaders, store)
		logger.Info("postgres sink enabled")
	}
	return loaders, nil
}

// sourceIdentity distinguishes checkpoint runs that read different data.
func sourceIdentity(cfg *config.Config) string {
	id := cfg.SourceKind + "|" + cfg.SourceVariable
	if cfg.SourceKind == config.SourceNetCDF {
		return id + "|" + cfg.NetCDFDir
	}
	return id + "|" + cfg.SourceURL
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
