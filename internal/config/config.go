package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/basin-rainfall-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Source kinds accepted by SOURCE_KIND.
const (
	SourceIMERG  = "imerg"
	SourceNetCDF = "netcdf"
	SourcePower  = "power"
)

// HTTPDisabled turns off the health and metrics server when set as HTTP_ADDR.
const HTTPDisabled = "off"

// DefaultPowerURL is the NASA POWER daily point endpoint.
const DefaultPowerURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

// Cache kinds accepted by CACHE_KIND.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	Interval        domain.StudyInterval
	RegionsFile     string
	OutputDir       string
	Granularities   []domain.Granularity
	MonthlyCoverage domain.MonthlyCoverage
	OutputCompress  bool

	// Precipitation source.
	SourceKind     string
	SourceURL      string
	SourceToken    string
	SourceVariable string
	SourceTimeout  time.Duration
	SourceRPS      float64
	NetCDFDir      string

	// Extraction.
	Workers      int
	RetryMax     int
	RetryBackoff time.Duration
	ChunkPeriods int

	CacheKind string
	CacheSize int
	RedisAddr string
	RedisTTL  time.Duration

	CheckpointDir string

	// Optional sinks; empty disables.
	KafkaBrokers []string
	KafkaTopic   string
	PostgresDSN  string

	// HTTPAddr is empty when HTTP_ADDR=off.
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	interval, err := domain.ParseStudyInterval(
		sharedcfg.EnvOrDefault("STUDY_START", "2006-01-01"),
		sharedcfg.EnvOrDefault("STUDY_END", "2025-12-31"),
	)
	if err != nil {
		return nil, fmt.Errorf("STUDY_START/STUDY_END: %w", err)
	}

	granularities, err := parseGranularities(sharedcfg.EnvOrDefault("GRANULARITIES", "daily,monthly"))
	if err != nil {
		return nil, err
	}

	coverage := domain.MonthlyCoverage(sharedcfg.EnvOrDefault("MONTHLY_COVERAGE", string(domain.CoverYears)))
	if coverage != domain.CoverYears && coverage != domain.CoverMonths {
		return nil, fmt.Errorf("invalid MONTHLY_COVERAGE %q: want years or months", coverage)
	}

	sourceTimeout, err := parsePositiveDuration("SOURCE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryBackoff, err := parsePositiveDuration("RETRY_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}
	redisTTL, err := parsePositiveDuration("REDIS_TTL", "720h")
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", 8, 1, 256)
	if err != nil {
		return nil, err
	}
	retryMax, err := parseInt("RETRY_MAX", 3, 0, 20)
	if err != nil {
		return nil, err
	}
	chunk, err := parseInt("CHUNK_PERIODS", 31, 1, 10000)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CACHE_SIZE", 10000, 1, 10_000_000)
	if err != nil {
		return nil, err
	}

	rps, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("SOURCE_RPS", "10"), 64)
	if err != nil || rps < 0 {
		return nil, errors.New("invalid SOURCE_RPS")
	}

	cfg := &Config{
		Interval:        interval,
		RegionsFile:     sharedcfg.EnvOrDefault("REGIONS_FILE", "config/panchganga.json"),
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		Granularities:   granularities,
		MonthlyCoverage: coverage,
		OutputCompress:  os.Getenv("OUTPUT_COMPRESS") == "true",

		SourceKind:     strings.ToLower(sharedcfg.EnvOrDefault("SOURCE_KIND", SourceIMERG)),
		SourceURL:      os.Getenv("SOURCE_URL"),
		SourceToken:    os.Getenv("SOURCE_TOKEN"),
		SourceVariable: sharedcfg.EnvOrDefault("SOURCE_VARIABLE", "precipitation"),
		SourceTimeout:  sourceTimeout,
		SourceRPS:      rps,
		NetCDFDir:      os.Getenv("NETCDF_DIR"),

		Workers:      workers,
		RetryMax:     retryMax,
		RetryBackoff: retryBackoff,
		ChunkPeriods: chunk,

		CacheKind: strings.ToLower(sharedcfg.EnvOrDefault("CACHE_KIND", CacheMemory)),
		CacheSize: cacheSize,
		RedisAddr: sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisTTL:  redisTTL,

		CheckpointDir: os.Getenv("CHECKPOINT_DIR"),

		KafkaTopic:  sharedcfg.EnvOrDefault("KAFKA_TOPIC", "basin-rainfall"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}
	if strings.EqualFold(cfg.HTTPAddr, HTTPDisabled) {
		cfg.HTTPAddr = ""
	}
	if cfg.SourceKind == SourcePower && cfg.SourceURL == "" {
		cfg.SourceURL = DefaultPowerURL
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SourceKind {
	case SourceIMERG, SourcePower:
		if c.SourceURL == "" {
			return fmt.Errorf("SOURCE_URL is required for SOURCE_KIND=%s", c.SourceKind)
		}
	case SourceNetCDF:
		if c.NetCDFDir == "" {
			return errors.New("NETCDF_DIR is required for SOURCE_KIND=netcdf")
		}
	default:
		return fmt.Errorf("invalid SOURCE_KIND %q: want imerg, netcdf or power", c.SourceKind)
	}

	switch c.CacheKind {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("invalid CACHE_KIND %q: want none, memory or redis", c.CacheKind)
	}
	if c.CacheKind == CacheRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for CACHE_KIND=redis")
	}
	if c.RegionsFile == "" {
		return errors.New("REGIONS_FILE is required")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// Wants reports whether the granularity is enabled.
func (c *Config) Wants(g domain.Granularity) bool {
	return slices.Contains(c.Granularities, g)
}

func parseGranularities(s string) ([]domain.Granularity, error) {
	var out []domain.Granularity
	seen := make(map[domain.Granularity]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := domain.ParseGranularity(part)
		if err != nil {
			return nil, fmt.Errorf("GRANULARITIES: %w", err)
		}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("GRANULARITIES must name at least one of daily, monthly")
	}
	return out, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}
