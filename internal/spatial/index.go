package spatial

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// ErrEmptyPolygon is returned when adding a polygon without loops
var ErrEmptyPolygon = errors.New("polygon has no loops")

// IndexBuilder collects polygons for one Index. It is not safe for
// concurrent use; Freeze hands the result over to readers.
type IndexBuilder struct {
	polygons []*s2.Polygon
	rect     s2.Rect
}

// NewIndexBuilder creates an empty builder
func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{rect: s2.EmptyRect()}
}

// Add inserts a polygon and returns its position in the index
func (b *IndexBuilder) Add(p *Polygon) (int, error) {
	if p == nil || len(p.loops) == 0 {
		return -1, ErrEmptyPolygon
	}
	poly := p.build()
	b.rect = b.rect.Union(poly.RectBound())
	b.polygons = append(b.polygons, poly)
	return len(b.polygons) - 1, nil
}

// Len returns the number of polygons added so far
func (b *IndexBuilder) Len() int { return len(b.polygons) }

// Freeze builds the S2 shape index and returns the read-only Index. The
// builder must not be used afterwards.
func (b *IndexBuilder) Freeze() *Index {
	idx := &Index{
		shapes:   s2.NewShapeIndex(),
		ids:      make(map[s2.Shape]int, len(b.polygons)),
		polygons: b.polygons,
		rect:     b.rect,
	}
	for i, poly := range b.polygons {
		idx.shapes.Add(poly)
		idx.ids[poly] = i
	}

	// The shape index applies pending additions lazily on the first query;
	// do it now, while there is still a single owner.
	s2.NewContainsPointQuery(idx.shapes, s2.VertexModelOpen).Contains(s2.PointFromCoords(0, 0, 1))

	b.polygons = nil
	return idx
}

// Index answers point containment queries over a fixed set of polygons. It
// has no mutators and may be shared by any number of goroutines.
type Index struct {
	shapes   *s2.ShapeIndex
	ids      map[s2.Shape]int
	polygons []*s2.Polygon
	rect     s2.Rect
}

// Len returns the number of indexed polygons
func (x *Index) Len() int { return len(x.polygons) }

// Bound returns the lon/lat bounding box of all indexed polygons, edges included
func (x *Index) Bound() orb.Bound {
	if x.rect.IsEmpty() {
		return orb.Bound{}
	}
	lo, hi := x.rect.Lo(), x.rect.Hi()
	return orb.Bound{
		Min: orb.Point{lo.Lng.Degrees(), lo.Lat.Degrees()},
		Max: orb.Point{hi.Lng.Degrees(), hi.Lat.Degrees()},
	}
}

// ContainingIndex returns the position of the first polygon containing the
// point. Points on a polygon boundary are not contained.
func (x *Index) ContainingIndex(lon, lat float64) (int, bool) {
	if !x.mayContain(lon, lat) {
		return -1, false
	}
	q := s2.NewContainsPointQuery(x.shapes, s2.VertexModelOpen)
	best := -1
	for _, shape := range q.ContainingShapes(s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))) {
		id, ok := x.ids[shape]
		if !ok {
			continue
		}
		if best < 0 || id < best {
			best = id
		}
	}
	return best, best >= 0
}

// ContainingIndexWithGeometry is ContainingIndex that also returns the shell
// vertices of the matched polygon in lon/lat degrees.
func (x *Index) ContainingIndexWithGeometry(lon, lat float64) (int, []orb.Point, bool) {
	id, ok := x.ContainingIndex(lon, lat)
	if !ok {
		return -1, nil, false
	}
	return id, x.shellVertices(id), true
}

// Geometry returns polygon i as an orb polygon; shells are followed by the
// holes they contain, each ring closed.
func (x *Index) Geometry(i int) orb.MultiPolygon {
	poly := x.polygons[i]
	var mp orb.MultiPolygon
	for _, l := range poly.Loops() {
		ring := loopRing(l)
		if !l.IsHole() || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	return mp
}

func (x *Index) shellVertices(i int) []orb.Point {
	var pts []orb.Point
	for _, l := range x.polygons[i].Loops() {
		if l.IsHole() {
			continue
		}
		for _, v := range l.Vertices() {
			ll := s2.LatLngFromPoint(v)
			pts = append(pts, orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()})
		}
	}
	return pts
}

func (x *Index) mayContain(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return x.rect.ContainsLatLng(s2.LatLngFromDegrees(lat, lon))
}

func loopRing(l *s2.Loop) orb.Ring {
	verts := l.Vertices()
	ring := make(orb.Ring, 0, len(verts)+1)
	for _, v := range verts {
		ll := s2.LatLngFromPoint(v)
		ring = append(ring, orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}
