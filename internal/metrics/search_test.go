package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gathered returns the value of the named metric whose labels include label=value
func gathered(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

func TestSearchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSearch(reg)

	m.ObserveQuery(OutcomeHit, time.Millisecond)
	m.ObserveQuery(OutcomeHit, 2*time.Millisecond)
	m.ObserveQuery(OutcomeMiss, time.Millisecond)
	m.AddMatch("hierarchy")
	m.SetTier("district_par", 3, 120)
	m.SetBuild(time.Second, 2)
	m.SetPublished()

	tests := []struct {
		name, label, value string
		want               float64
	}{
		{"revgeo_queries_total", "outcome", OutcomeHit, 2},
		{"revgeo_queries_total", "outcome", OutcomeMiss, 1},
		{"revgeo_query_duration_seconds", "", "", 3},
		{"revgeo_matches_total", "tier", "hierarchy", 1},
		{"revgeo_polygon_sets", "tier", "district_par", 3},
		{"revgeo_polygons", "tier", "district_par", 120},
		{"revgeo_index_build_seconds", "", "", 1},
		{"revgeo_skipped_files_total", "", "", 2},
		{"revgeo_index_published", "", "", 1},
	}
	for _, tt := range tests {
		if got := gathered(t, reg, tt.name, tt.label, tt.value); got != tt.want {
			t.Errorf("%s{%s=%q} = %v, want %v", tt.name, tt.label, tt.value, got, tt.want)
		}
	}
}

func TestNilSearchMetrics(t *testing.T) {
	var m *Search
	m.ObserveQuery(OutcomeMiss, time.Millisecond)
	m.AddMatch("hierarchy")
	m.SetTier("hierarchy", 1, 1)
	m.SetBuild(time.Second, 0)
	m.SetPublished()
}
