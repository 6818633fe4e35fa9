// Package boundary turns boundary files into indexed polygon sets.
package boundary

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/revgeo-go/internal/spatial"
)

// ErrMisaligned means the polygon index and the metadata list disagree on a position
var ErrMisaligned = errors.New("polygon index and metadata are misaligned")

// Info is the administrative metadata attached to one polygon
type Info struct {
	District string `json:"district"`
	Level    int32  `json:"level"`
	Name     string `json:"name"`
}

// PolygonSet is the immutable collection of polygons loaded from one boundary file
type PolygonSet struct {
	source string
	index  *spatial.Index
	infos  []Info
}

// Source returns the file the set was loaded from
func (s *PolygonSet) Source() string { return s.source }

// Len returns the number of polygons in the set
func (s *PolygonSet) Len() int { return len(s.infos) }

// Info returns the metadata of polygon i
func (s *PolygonSet) Info(i int) Info { return s.infos[i] }

// Geometry returns polygon i as lon/lat rings
func (s *PolygonSet) Geometry(i int) orb.MultiPolygon { return s.index.Geometry(i) }

// Bound returns the bounding box of the whole set
func (s *PolygonSet) Bound() orb.Bound { return s.index.Bound() }

// Locate returns the metadata of the first polygon containing the point
func (s *PolygonSet) Locate(lon, lat float64) (Info, bool) {
	i, ok := s.index.ContainingIndex(lon, lat)
	if !ok {
		return Info{}, false
	}
	return s.infos[i], true
}

// LocateWithGeometry is Locate that also returns the shell vertices of the
// matched polygon
func (s *PolygonSet) LocateWithGeometry(lon, lat float64) (Info, []orb.Point, bool) {
	i, verts, ok := s.index.ContainingIndexWithGeometry(lon, lat)
	if !ok {
		return Info{}, nil, false
	}
	return s.infos[i], verts, true
}

// SetBuilder accumulates (polygon, info) pairs for one PolygonSet. Both lists
// only grow together through Add.
type SetBuilder struct {
	source string
	index  *spatial.IndexBuilder
	infos  []Info
}

// NewSetBuilder starts a set for the given source file
func NewSetBuilder(source string) *SetBuilder {
	return &SetBuilder{
		source: source,
		index:  spatial.NewIndexBuilder(),
	}
}

// Add inserts a polygon together with its metadata
func (b *SetBuilder) Add(p *spatial.Polygon, info Info) error {
	pos, err := b.index.Add(p)
	if err != nil {
		return err
	}
	if pos != len(b.infos) {
		return fmt.Errorf("%w: polygon %d, info %d", ErrMisaligned, pos, len(b.infos))
	}
	b.infos = append(b.infos, info)
	return nil
}

// Len returns the number of pairs added so far
func (b *SetBuilder) Len() int { return len(b.infos) }

// Build freezes the spatial index and returns the finished set
func (b *SetBuilder) Build() *PolygonSet {
	return &PolygonSet{
		source: b.source,
		index:  b.index.Freeze(),
		infos:  b.infos,
	}
}
