package boundary

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/geometry"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/spatial"
)

// Record is one row of a boundary file: the rings of its geometry and the
// configured attribute values in order
type Record struct {
	Rings      []geometry.Ring
	Attributes []string
}

// Name returns the display name of the record: the second attribute when
// present, otherwise the first
func (r Record) Name() string {
	switch {
	case len(r.Attributes) > 1:
		return r.Attributes[1]
	case len(r.Attributes) == 1:
		return r.Attributes[0]
	default:
		return ""
	}
}

// RingError reports a ring whose loop status was fatal
type RingError struct {
	Path   string
	Name   string
	Record int
	Ring   int
	Status spatial.Status
}

func (e *RingError) Error() string {
	return fmt.Sprintf("%s: record %d (%s) ring %d: loop status %s",
		e.Path, e.Record, e.Name, e.Ring, e.Status)
}

// Assembler turns the rings of one record into a polygon
type Assembler struct {
	// Strict escalates anomalous loop statuses to fatal
	Strict bool
	// DebugName traces every accepted point of records with this name
	DebugName string
}

// RingStats counts what happened to the rings of a record or file
type RingStats struct {
	Accepted  int
	Collapsed int // fewer than three points after normalization
	Ignored   int
	Anomalous int
}

func (s *RingStats) add(o RingStats) {
	s.Accepted += o.Accepted
	s.Collapsed += o.Collapsed
	s.Ignored += o.Ignored
	s.Anomalous += o.Anomalous
}

// Assemble normalizes every ring of rec and groups the accepted loops into a
// polygon. It returns a nil polygon when no ring survives.
func (a *Assembler) Assemble(path string, recIdx int, rec Record) (*spatial.Polygon, RingStats, error) {
	log := logger.Get()
	name := rec.Name()
	trace := a.DebugName != "" && name == a.DebugName

	var stats RingStats
	poly := &spatial.Polygon{}

	for ringIdx, ring := range rec.Rings {
		points := geometry.NormalizeRing(ring.Points)
		if points == nil {
			stats.Collapsed++
			continue
		}

		if trace {
			for i, p := range points {
				log.Debug("Ring point",
					zap.String("path", path),
					zap.String("name", name),
					zap.Int("ring", ringIdx),
					zap.Int("point", i),
					zap.Float64("lon", p[0]),
					zap.Float64("lat", p[1]))
			}
		}

		loop, status := spatial.NewLoop(points, ring.Outer)
		severity := status.Severity()
		if severity == spatial.SeverityAnomalous && a.Strict {
			severity = spatial.SeverityFatal
		}

		switch severity {
		case spatial.SeverityNone:
			poly.Add(loop)
			stats.Accepted++
			if trace {
				log.Debug("Loop accepted",
					zap.String("path", path),
					zap.String("name", name),
					zap.Int("ring", ringIdx),
					zap.Bool("outer", loop.Outer()),
					zap.Int("vertices", loop.NumVertices()))
			}
		case spatial.SeverityIgnorable:
			stats.Ignored++
		case spatial.SeverityAnomalous:
			stats.Anomalous++
			log.Warn("Dropping ring",
				zap.String("path", path),
				zap.String("name", name),
				zap.Int("record", recIdx),
				zap.Int("ring", ringIdx),
				zap.Int("points", len(points)),
				zap.Stringer("status", status))
		case spatial.SeverityFatal:
			return nil, stats, &RingError{Path: path, Name: name, Record: recIdx, Ring: ringIdx, Status: status}
		}
	}

	if poly.NumLoops() == 0 {
		return nil, stats, nil
	}
	return poly, stats, nil
}
