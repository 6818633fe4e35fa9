package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/revgeo-go/internal/boundary"
	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/metrics"
)

// ErrNoAttribute means a layer name has no attribute mapping
var ErrNoAttribute = errors.New("no attribute mapping")

// LoadError is a fatal build error with the file it happened on
type LoadError struct {
	Tier     Tier
	District string
	Name     string
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s %s/%s (%s): %v", e.Tier, e.District, e.Name, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SetLoader loads one boundary file into a polygon set
type SetLoader interface {
	Load(path, district string, attr config.Attribute) (*boundary.PolygonSet, error)
}

// Builder loads the configured boundary files into an Index
type Builder struct {
	cfg     *config.Search
	workers int
	loader  SetLoader
	glob    func(pattern string) ([]string, error)
	metrics *metrics.Search
}

// Option configures a Builder
type Option func(*Builder)

// WithGlob replaces the function expanding tier-3 file patterns
func WithGlob(glob func(pattern string) ([]string, error)) Option {
	return func(b *Builder) { b.glob = glob }
}

// WithMetrics records build statistics in m
func WithMetrics(m *metrics.Search) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder creates a builder. workers bounds the number of files loaded
// concurrently per district.
func NewBuilder(cfg *config.Search, workers int, loader SetLoader, opts ...Option) *Builder {
	if workers < 1 {
		workers = 1
	}
	b := &Builder{
		cfg:     cfg,
		workers: workers,
		loader:  loader,
		glob:    filepath.Glob,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build loads every tier and returns the finished index. Any error is fatal;
// tier-3 files that fail to load are logged and skipped.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	log := logger.Get()
	start := time.Now()

	if err := b.checkAttributes(); err != nil {
		return nil, err
	}

	idx := newIndex(b.cfg.Districts)

	log.Info("Loading hierarchies",
		zap.Int("districts", len(b.cfg.Districts)),
		zap.Strings("names", b.cfg.Hierarchies))
	if err := b.buildHierarchies(ctx, idx); err != nil {
		return nil, err
	}

	log.Info("Loading district_par", zap.Strings("names", b.cfg.DistrictPar))
	if err := b.buildDistrictPar(ctx, idx); err != nil {
		return nil, err
	}

	log.Info("Loading district_par_any", zap.Strings("patterns", b.cfg.DistrictParAny))
	skipped, err := b.buildDistrictParAny(ctx, idx)
	if err != nil {
		return nil, err
	}

	// shard contents depend on goroutine scheduling until sorted
	idx.districtPar.sortBySource()
	idx.districtParAny.sortBySource()

	idx.stats = b.stats(idx, skipped, time.Since(start))

	warm := b.cfg.Warmup
	warmStart := time.Now()
	results := NewEngine(nil, b.cfg.QueryWorkers, nil, WithMatchLogging(b.cfg.Debug)).searchIndex(idx, warm.Lon, warm.Lat)
	log.Debug("Warm-up query",
		zap.Float64("lon", warm.Lon),
		zap.Float64("lat", warm.Lat),
		zap.Int("matches", len(results)),
		zap.Duration("elapsed", time.Since(warmStart)))

	st := idx.stats
	log.Info("Index built",
		zap.Int("hierarchy_sets", st.HierarchySets),
		zap.Int("hierarchy_polygons", st.HierarchyPolygons),
		zap.Int("district_par_sets", st.DistrictParSets),
		zap.Int("district_par_polygons", st.DistrictParPolygons),
		zap.Int("district_par_any_sets", st.DistrictParAnySets),
		zap.Int("district_par_any_polygons", st.DistrictParAnyPolygons),
		zap.Int("skipped_files", st.SkippedFiles),
		zap.Duration("duration", st.Duration))

	b.metrics.SetTier(TierHierarchy.String(), st.HierarchySets, st.HierarchyPolygons)
	b.metrics.SetTier(TierDistrictPar.String(), st.DistrictParSets, st.DistrictParPolygons)
	b.metrics.SetTier(TierDistrictParAny.String(), st.DistrictParAnySets, st.DistrictParAnyPolygons)
	b.metrics.SetBuild(st.Duration, st.SkippedFiles)

	return idx, nil
}

// BuildAndPublish builds the index and publishes it in r
func (b *Builder) BuildAndPublish(ctx context.Context, r *Registry) (*Index, error) {
	idx, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Publish(idx); err != nil {
		return nil, err
	}
	b.metrics.SetPublished()
	logger.Get().Info("Index published")
	return idx, nil
}

func (b *Builder) checkAttributes() error {
	tiers := []struct {
		tier  Tier
		names []string
	}{
		{TierHierarchy, b.cfg.Hierarchies},
		{TierDistrictPar, b.cfg.DistrictPar},
		{TierDistrictParAny, b.cfg.DistrictParAny},
	}
	for _, t := range tiers {
		for _, name := range t.names {
			if _, ok := b.cfg.Shapefile.Attributes[name]; !ok {
				return &LoadError{Tier: t.tier, Name: name, Err: ErrNoAttribute}
			}
		}
	}
	return nil
}

// buildHierarchies loads tier 1 in configuration order. The order of the
// resulting list is the order queries visit it.
func (b *Builder) buildHierarchies(ctx context.Context, idx *Index) error {
	log := logger.Get()
	for _, district := range b.cfg.Districts {
		for _, name := range b.cfg.Hierarchies {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := b.cfg.ExpandPath(b.cfg.Layout.Hierarchy, district, name)
			set, err := b.loader.Load(path, district, b.cfg.Shapefile.Attributes[name])
			if err != nil {
				return &LoadError{Tier: TierHierarchy, District: district, Name: name, Path: path, Err: err}
			}
			idx.hierarchies = append(idx.hierarchies, set)
			log.Debug("Loaded hierarchy",
				zap.String("district", district),
				zap.String("name", name),
				zap.Int("polygons", set.Len()))
		}
	}
	return nil
}

// buildDistrictPar loads tier 2, districts and names concurrently. The first
// failure cancels the remaining loads.
func (b *Builder) buildDistrictPar(ctx context.Context, idx *Index) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, district := range b.cfg.Districts {
		g.Go(func() error {
			inner, ctx := errgroup.WithContext(ctx)
			inner.SetLimit(b.workers)
			for _, name := range b.cfg.DistrictPar {
				inner.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					path := b.cfg.ExpandPath(b.cfg.Layout.DistrictPar, district, name)
					set, err := b.loader.Load(path, district, b.cfg.Shapefile.Attributes[name])
					if err != nil {
						return &LoadError{Tier: TierDistrictPar, District: district, Name: name, Path: path, Err: err}
					}
					return idx.districtPar.add(district, set)
				})
			}
			return inner.Wait()
		})
	}

	return g.Wait()
}

// buildDistrictParAny loads tier 3. Every pattern is expanded first; a
// malformed pattern is fatal, a file that fails to load is skipped.
func (b *Builder) buildDistrictParAny(ctx context.Context, idx *Index) (int, error) {
	log := logger.Get()
	var skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, district := range b.cfg.Districts {
		g.Go(func() error {
			type job struct{ name, path string }
			var jobs []job
			for _, name := range b.cfg.DistrictParAny {
				pattern := b.cfg.ExpandPath(b.cfg.Layout.DistrictParAny, district, name)
				matches, err := b.glob(pattern)
				if err != nil {
					return &LoadError{Tier: TierDistrictParAny, District: district, Name: name, Path: pattern, Err: err}
				}
				for _, path := range matches {
					jobs = append(jobs, job{name: name, path: path})
				}
			}

			inner, ctx := errgroup.WithContext(ctx)
			inner.SetLimit(b.workers)
			for _, j := range jobs {
				inner.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					set, err := b.loader.Load(j.path, district, b.cfg.Shapefile.Attributes[j.name])
					if err != nil {
						skipped.Add(1)
						log.Warn("Skipping boundary file",
							zap.String("district", district),
							zap.String("name", j.name),
							zap.String("path", j.path),
							zap.Error(err))
						return nil
					}
					return idx.districtParAny.add(district, set)
				})
			}
			return inner.Wait()
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(skipped.Load()), nil
}

func (b *Builder) stats(idx *Index, skipped int, d time.Duration) BuildStats {
	st := BuildStats{SkippedFiles: skipped, Duration: d}
	for _, set := range idx.hierarchies {
		st.HierarchySets++
		st.HierarchyPolygons += set.Len()
	}
	st.DistrictParSets, st.DistrictParPolygons = idx.districtPar.size()
	st.DistrictParAnySets, st.DistrictParAnyPolygons = idx.districtParAny.size()
	return st
}
