// Package search builds the tiered district index and answers reverse
// geocoding queries against it.
//
// Tier 1 (hierarchies) is an ordered list of polygon sets that is always
// searched. Tier 2 (district_par) and tier 3 (district_par_any) hold sets per
// district and are only searched for districts that matched in tier 1.
package search

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wegman-software/revgeo-go/internal/boundary"
)

// Tier identifies one layer of the index
type Tier int

const (
	TierHierarchy      Tier = 1
	TierDistrictPar    Tier = 2
	TierDistrictParAny Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierHierarchy:
		return "hierarchy"
	case TierDistrictPar:
		return "district_par"
	case TierDistrictParAny:
		return "district_par_any"
	default:
		return "unknown"
	}
}

type shard struct {
	mu   sync.RWMutex
	sets []*boundary.PolygonSet
}

// Layer maps every configured district to its polygon sets. The district
// keys are fixed when the layer is created; each district has its own lock.
type Layer struct {
	shards map[string]*shard
}

func newLayer(districts []string) *Layer {
	l := &Layer{shards: make(map[string]*shard, len(districts))}
	for _, d := range districts {
		l.shards[d] = &shard{}
	}
	return l
}

func (l *Layer) add(district string, set *boundary.PolygonSet) error {
	s, ok := l.shards[district]
	if !ok {
		return fmt.Errorf("unknown district %q", district)
	}
	s.mu.Lock()
	s.sets = append(s.sets, set)
	s.mu.Unlock()
	return nil
}

// Sets returns the polygon sets of a district. The returned slice must not be
// modified.
func (l *Layer) Sets(district string) []*boundary.PolygonSet {
	s, ok := l.shards[district]
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets
}

// Districts returns the district keys of the layer in sorted order
func (l *Layer) Districts() []string {
	keys := make([]string, 0, len(l.shards))
	for k := range l.shards {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *Layer) sortBySource() {
	for _, s := range l.shards {
		s.mu.Lock()
		sort.SliceStable(s.sets, func(i, j int) bool {
			return s.sets[i].Source() < s.sets[j].Source()
		})
		s.mu.Unlock()
	}
}

func (l *Layer) size() (sets, polygons int) {
	for _, s := range l.shards {
		s.mu.RLock()
		for _, set := range s.sets {
			sets++
			polygons += set.Len()
		}
		s.mu.RUnlock()
	}
	return sets, polygons
}

// BuildStats summarizes one index build
type BuildStats struct {
	HierarchySets          int
	HierarchyPolygons      int
	DistrictParSets        int
	DistrictParPolygons    int
	DistrictParAnySets     int
	DistrictParAnyPolygons int
	SkippedFiles           int
	Duration               time.Duration
}

// Index is the finished three-tier search structure. It is immutable once
// published.
type Index struct {
	hierarchies    []*boundary.PolygonSet
	districtPar    *Layer
	districtParAny *Layer
	stats          BuildStats
}

func newIndex(districts []string) *Index {
	return &Index{
		districtPar:    newLayer(districts),
		districtParAny: newLayer(districts),
	}
}

// Hierarchies returns the tier-1 sets in build order
func (x *Index) Hierarchies() []*boundary.PolygonSet { return x.hierarchies }

// DistrictPar returns the tier-2 layer
func (x *Index) DistrictPar() *Layer { return x.districtPar }

// DistrictParAny returns the tier-3 layer
func (x *Index) DistrictParAny() *Layer { return x.districtParAny }

// Stats returns the statistics of the build that produced the index
func (x *Index) Stats() BuildStats { return x.stats }

// Sets returns every polygon set of the index with its tier
func (x *Index) Sets() map[Tier][]*boundary.PolygonSet {
	all := map[Tier][]*boundary.PolygonSet{
		TierHierarchy: append([]*boundary.PolygonSet(nil), x.hierarchies...),
	}
	for _, d := range x.districtPar.Districts() {
		all[TierDistrictPar] = append(all[TierDistrictPar], x.districtPar.Sets(d)...)
	}
	for _, d := range x.districtParAny.Districts() {
		all[TierDistrictParAny] = append(all[TierDistrictParAny], x.districtParAny.Sets(d)...)
	}
	return all
}
