// Package spatial wraps the S2 geometry library as the point containment
// primitive. Loops and polygons are assembled by a single writer through
// IndexBuilder; the frozen Index it produces is safe for concurrent readers.
package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"github.com/wegman-software/revgeo-go/internal/geometry"
)

// Status is the outcome of building one loop
type Status int

const (
	StatusOK             Status = 0
	StatusInvalid        Status = 1 // S2 validation failed (self intersection, antipodal edge)
	StatusOuterCurvature Status = 2 // outer ring wound counter-clockwise
	StatusInnerCurvature Status = 3 // inner ring wound clockwise
	StatusTooFewVertices Status = 4
	StatusNonFinite      Status = 5 // NaN or infinite coordinate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid"
	case StatusOuterCurvature:
		return "outer_curvature"
	case StatusInnerCurvature:
		return "inner_curvature"
	case StatusTooFewVertices:
		return "too_few_vertices"
	case StatusNonFinite:
		return "non_finite"
	default:
		return "unknown"
	}
}

// Severity classifies how a rejected loop affects the surrounding load
type Severity int

const (
	SeverityNone      Severity = iota
	SeverityIgnorable          // dropped without a diagnostic
	SeverityAnomalous          // dropped and logged
	SeverityFatal              // fails the file
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityIgnorable:
		return "ignorable"
	case SeverityAnomalous:
		return "anomalous"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Severity returns the fixed severity of a status
func (s Status) Severity() Severity {
	switch s {
	case StatusOK:
		return SeverityNone
	case StatusTooFewVertices:
		return SeverityIgnorable
	case StatusNonFinite:
		return SeverityFatal
	default:
		return SeverityAnomalous
	}
}

// Loop is one validated ring ready to be added to a polygon
type Loop struct {
	loop  *s2.Loop
	outer bool
}

// Outer reports whether the loop is a shell rather than a hole
func (l *Loop) Outer() bool { return l.outer }

// NumVertices returns the number of vertices of the loop
func (l *Loop) NumVertices() int { return l.loop.NumVertices() }

// NewLoop builds an S2 loop from a normalized ring.
//
// Shapefile rings wind clockwise for shells and counter-clockwise for holes;
// a ring wound the other way is rejected with a curvature status.
func NewLoop(ring orb.Ring, outer bool) (*Loop, Status) {
	if !geometry.IsFinite(ring) {
		return nil, StatusNonFinite
	}
	if len(ring) < geometry.MinRingPoints {
		return nil, StatusTooFewVertices
	}

	points := make([]s2.Point, len(ring))
	for i, p := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0]))
	}

	loop := s2.LoopFromPoints(points)
	if err := loop.Validate(); err != nil {
		return nil, StatusInvalid
	}

	// A clockwise ring encloses the complement of its area, so its turning
	// angle is negative.
	curvature := loop.TurningAngle()
	if outer && curvature > 0 {
		return nil, StatusOuterCurvature
	}
	if !outer && curvature < 0 {
		return nil, StatusInnerCurvature
	}

	if outer {
		loop.Invert()
	}
	return &Loop{loop: loop, outer: outer}, StatusOK
}

// Polygon is the set of loops of one source record
type Polygon struct {
	loops []*Loop
}

// Add appends a loop to the polygon
func (p *Polygon) Add(l *Loop) {
	p.loops = append(p.loops, l)
}

// NumLoops returns the number of loops added so far
func (p *Polygon) NumLoops() int { return len(p.loops) }

// build converts the loops into an S2 polygon. Every loop now encloses the
// small region it bounds, so the polygon interior is the set of points
// contained by an odd number of loops.
func (p *Polygon) build() *s2.Polygon {
	loops := make([]*s2.Loop, len(p.loops))
	for i, l := range p.loops {
		loops[i] = l.loop
	}
	return s2.PolygonFromLoops(loops)
}
