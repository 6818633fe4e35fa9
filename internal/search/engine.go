package search

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/revgeo-go/internal/boundary"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/metrics"
)

// Result is one administrative region containing the queried point
type Result struct {
	District string      `json:"district"`
	Level    int32       `json:"level"`
	Name     string      `json:"name"`
	Vertices []orb.Point `json:"lnglats,omitempty"` // shell vertices, tier-3 matches only
}

func newResult(info boundary.Info, verts []orb.Point) Result {
	return Result{District: info.District, Level: info.Level, Name: info.Name, Vertices: verts}
}

// Engine answers queries against the index held by a registry
type Engine struct {
	registry   *Registry
	workers    int
	metrics    *metrics.Search
	logMatches bool
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithMatchLogging logs every matched region at debug level
func WithMatchLogging(enabled bool) EngineOption {
	return func(e *Engine) { e.logMatches = enabled }
}

// NewEngine creates an engine. workers bounds the fan-out of one query over
// the sets of a district; m may be nil.
func NewEngine(r *Registry, workers int, m *metrics.Search, opts ...EngineOption) *Engine {
	if workers < 1 {
		workers = 1
	}
	e := &Engine{registry: r, workers: workers, metrics: m}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns every region containing the point, ordered by level. The
// order of regions with equal level follows the build order of tier 1.
func (e *Engine) Search(lon, lat float64) ([]Result, error) {
	start := time.Now()
	idx, err := e.registry.Index()
	if err != nil {
		e.metrics.ObserveQuery(metrics.OutcomeNotReady, time.Since(start))
		return nil, err
	}

	results := e.searchIndex(idx, lon, lat)

	outcome := metrics.OutcomeHit
	if len(results) == 0 {
		outcome = metrics.OutcomeMiss
	}
	e.metrics.ObserveQuery(outcome, time.Since(start))
	return results, nil
}

func (e *Engine) searchIndex(idx *Index, lon, lat float64) []Result {
	results := []Result{}
	if !finite(lon) || !finite(lat) {
		return results
	}

	for _, set := range idx.hierarchies {
		info, ok := set.Locate(lon, lat)
		if !ok {
			continue
		}
		results = append(results, newResult(info, nil))
		e.metrics.AddMatch(TierHierarchy.String())

		for _, r := range e.searchAll(idx.districtPar.Sets(info.District), lon, lat) {
			results = append(results, r)
			e.metrics.AddMatch(TierDistrictPar.String())
		}

		if r, ok := e.searchFirst(idx.districtParAny.Sets(info.District), lon, lat); ok {
			results = append(results, r)
			e.metrics.AddMatch(TierDistrictParAny.String())
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Level < results[j].Level
	})

	if e.logMatches {
		log := logger.Get()
		for _, r := range results {
			log.Debug("Match",
				zap.Float64("lon", lon),
				zap.Float64("lat", lat),
				zap.String("district", r.District),
				zap.Int32("level", r.Level),
				zap.String("name", r.Name))
		}
	}
	return results
}

// searchAll queries every set concurrently and returns all hits in set order
func (e *Engine) searchAll(sets []*boundary.PolygonSet, lon, lat float64) []Result {
	if len(sets) == 0 {
		return nil
	}

	hits := make([]*Result, len(sets))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, set := range sets {
		g.Go(func() error {
			if info, ok := set.Locate(lon, lat); ok {
				r := newResult(info, nil)
				hits[i] = &r
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []Result
	for _, h := range hits {
		if h != nil {
			results = append(results, *h)
		}
	}
	return results
}

// searchFirst queries the sets concurrently and returns the first hit
// reported. Remaining lookups are cancelled once a hit is stored, so which of
// several overlapping polygons wins is not deterministic.
func (e *Engine) searchFirst(sets []*boundary.PolygonSet, lon, lat float64) (Result, bool) {
	if len(sets) == 0 {
		return Result{}, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slot atomic.Pointer[Result]
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, set := range sets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			info, verts, ok := set.LocateWithGeometry(lon, lat)
			if !ok {
				return nil
			}
			r := newResult(info, verts)
			if slot.CompareAndSwap(nil, &r) {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	if r := slot.Load(); r != nil {
		return *r, true
	}
	return Result{}, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
