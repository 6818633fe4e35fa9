package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeNotReady = "not_ready"
)

// Search holds the Prometheus metrics of index building and querying. A nil
// *Search is valid and records nothing.
type Search struct {
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  prometheus.Histogram
	MatchesTotal   *prometheus.CounterVec
	PolygonSets    *prometheus.GaugeVec
	Polygons       *prometheus.GaugeVec
	BuildSeconds   prometheus.Gauge
	SkippedFiles   prometheus.Counter
	IndexPublished prometheus.Gauge
}

// NewSearch creates the search metrics and registers them with reg
func NewSearch(reg prometheus.Registerer) *Search {
	f := promauto.With(reg)
	return &Search{
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revgeo_queries_total",
				Help: "Total number of reverse geocoding queries",
			},
			[]string{"outcome"},
		),
		QueryDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "revgeo_query_duration_seconds",
				Help:    "Duration of reverse geocoding queries in seconds",
				Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		MatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revgeo_matches_total",
				Help: "Total number of matched polygons by tier",
			},
			[]string{"tier"},
		),
		PolygonSets: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "revgeo_polygon_sets",
				Help: "Number of loaded boundary files by tier",
			},
			[]string{"tier"},
		),
		Polygons: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "revgeo_polygons",
				Help: "Number of indexed polygons by tier",
			},
			[]string{"tier"},
		),
		BuildSeconds: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "revgeo_index_build_seconds",
				Help: "Time taken to build the index",
			},
		),
		SkippedFiles: f.NewCounter(
			prometheus.CounterOpts{
				Name: "revgeo_skipped_files_total",
				Help: "Boundary files skipped because they failed to load",
			},
		),
		IndexPublished: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "revgeo_index_published",
				Help: "1 once the index is published and queries are served",
			},
		),
	}
}

// ObserveQuery records one query and its duration
func (m *Search) ObserveQuery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(d.Seconds())
}

// AddMatch counts one matched polygon of the given tier
func (m *Search) AddMatch(tier string) {
	if m == nil {
		return
	}
	m.MatchesTotal.WithLabelValues(tier).Inc()
}

// SetTier records the size of one tier after a build
func (m *Search) SetTier(tier string, sets, polygons int) {
	if m == nil {
		return
	}
	m.PolygonSets.WithLabelValues(tier).Set(float64(sets))
	m.Polygons.WithLabelValues(tier).Set(float64(polygons))
}

// SetBuild records the build duration and the number of skipped files
func (m *Search) SetBuild(d time.Duration, skipped int) {
	if m == nil {
		return
	}
	m.BuildSeconds.Set(d.Seconds())
	m.SkippedFiles.Add(float64(skipped))
}

// SetPublished marks the index as published
func (m *Search) SetPublished() {
	if m == nil {
		return
	}
	m.IndexPublished.Set(1)
}
