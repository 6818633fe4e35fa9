package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/boundary"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/metrics"
	"github.com/wegman-software/revgeo-go/internal/search"
	"github.com/wegman-software/revgeo-go/internal/shapefile"
)

// newBuilder wires the shapefile reader, boundary loader and index builder
// from the current configuration
func newBuilder(m *metrics.Search) (*search.Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reader, err := shapefile.NewReader(cfg.Search.Shapefile.Encoding)
	if err != nil {
		return nil, err
	}
	loader := boundary.NewLoader(reader, boundary.Assembler{
		Strict:    cfg.Search.Strict,
		DebugName: cfg.Search.DebugName,
	})

	return search.NewBuilder(&cfg.Search, cfg.Workers, loader, search.WithMetrics(m)), nil
}

// startCollector logs resource usage until ctx is cancelled. It returns nil
// when collection is disabled.
func startCollector(ctx context.Context) *metrics.Collector {
	if cfg.MetricsInterval <= 0 {
		return nil
	}
	log := logger.Get()
	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	go collector.Start(ctx)
	log.Info("System metrics collection started", zap.Duration("interval", cfg.MetricsInterval))
	return collector
}

// buildIndex builds the index and publishes it in r
func buildIndex(ctx context.Context, r *search.Registry, m *metrics.Search) (*search.Index, error) {
	log := logger.Get()

	b, err := newBuilder(m)
	if err != nil {
		return nil, err
	}

	log.Info("Building index",
		zap.String("shapefile_path", cfg.Search.Shapefile.Path),
		zap.Int("districts", len(cfg.Search.Districts)),
		zap.Int("workers", cfg.Workers),
		zap.Bool("strict", cfg.Search.Strict))

	start := time.Now()
	idx, err := b.BuildAndPublish(ctx, r)
	if err != nil {
		return nil, err
	}
	log.Info("Index ready", zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return idx, nil
}
