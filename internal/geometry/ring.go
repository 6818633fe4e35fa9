// Package geometry cleans raw boundary rings into loops the spatial index accepts.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Epsilon is the per-axis tolerance, in degrees, under which two coordinates are the same point
const Epsilon = 1e-7

// MinRingPoints is the smallest number of distinct points a usable ring keeps
const MinRingPoints = 3

// Ring is one boundary loop of a record. Outer is taken from the source
// geometry and never recomputed here.
type Ring struct {
	Points orb.Ring
	Outer  bool
}

// SamePoint reports whether a and b are within Epsilon on both axes
func SamePoint(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= Epsilon && math.Abs(a[1]-b[1]) <= Epsilon
}

// NormalizeRing removes duplicates, the closing point and back-and-forth
// spikes from raw. It returns nil when fewer than MinRingPoints survive.
//
// A point is rejected when it repeats the previously accepted point, repeats
// the first point, or appears anywhere earlier in the accepted ring. A point
// that returns to the accepted point two positions back is a spike: it is
// rejected and the point it bounced off is removed as well.
func NormalizeRing(raw []orb.Point) orb.Ring {
	if len(raw) == 0 {
		return nil
	}

	accepted := make(orb.Ring, 0, len(raw))
	accepted = append(accepted, raw[0])
	first := raw[0]

	for _, p := range raw[1:] {
		n := len(accepted)
		if SamePoint(p, accepted[n-1]) {
			continue
		}
		if SamePoint(p, first) {
			continue
		}
		if n >= 2 && SamePoint(p, accepted[n-2]) {
			accepted = accepted[:n-1]
			continue
		}
		if contains(accepted, p) {
			continue
		}
		accepted = append(accepted, p)
	}

	if len(accepted) < MinRingPoints {
		return nil
	}
	return accepted
}

// IsFinite reports whether every coordinate of the ring is a finite number
func IsFinite(ring orb.Ring) bool {
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return false
		}
	}
	return true
}

func contains(ring orb.Ring, p orb.Point) bool {
	for _, q := range ring {
		if SamePoint(p, q) {
			return true
		}
	}
	return false
}
