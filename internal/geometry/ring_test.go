package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestNormalizeRing(t *testing.T) {
	tests := []struct {
		name string
		raw  []orb.Point
		want orb.Ring
	}{
		{
			name: "spike at (1,0) removes the point it bounced off",
			raw:  []orb.Point{{0, 0}, {1, 0}, {2, 0}, {1, 0}, {3, 0}, {3, 3}, {0, 3}},
			want: orb.Ring{{0, 0}, {1, 0}, {3, 0}, {3, 3}, {0, 3}},
		},
		{
			name: "closing point of a shapefile ring is dropped",
			raw:  []orb.Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
			want: orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
		},
		{
			name: "adjacent duplicates within tolerance",
			raw:  []orb.Point{{0, 0}, {0, 10}, {0, 10.00000005}, {10, 10}, {10, 0}, {0, 0}},
			want: orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}},
		},
		{
			name: "cascading spikes",
			raw:  []orb.Point{{0, 0}, {5, 0}, {5, 5}, {6, 6}, {5, 5}, {5, 0}, {9, 0}, {9, 9}, {0, 0}},
			want: orb.Ring{{0, 0}, {5, 0}, {9, 0}, {9, 9}},
		},
		{
			name: "non-adjacent repeat is filtered",
			raw:  []orb.Point{{0, 0}, {4, 0}, {4, 4}, {2, 2}, {4, 0}, {0, 4}, {0, 0}},
			want: orb.Ring{{0, 0}, {4, 0}, {4, 4}, {2, 2}, {0, 4}},
		},
		{
			name: "collapses below three points",
			raw:  []orb.Point{{0, 0}, {1, 1}, {0, 0}},
			want: nil,
		},
		{
			name: "degenerate back and forth",
			raw:  []orb.Point{{0, 0}, {1, 0}, {2, 0}, {1, 0}, {0, 0}},
			want: nil,
		},
		{
			name: "empty",
			raw:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRing(tt.raw)
			if !ringEqual(got, tt.want) {
				t.Errorf("NormalizeRing() = %v, want %v", got, tt.want)
			}
			assertRingInvariant(t, got)
		})
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(orb.Ring{{0, 0}, {1, 1}}) {
		t.Error("expected finite ring")
	}
	if IsFinite(orb.Ring{{0, 0}, {math.NaN(), 1}}) {
		t.Error("expected NaN to be reported")
	}
	if IsFinite(orb.Ring{{math.Inf(1), 0}}) {
		t.Error("expected Inf to be reported")
	}
}

// assertRingInvariant checks that a normalized ring is either dropped or has
// at least three points with no coordinate repeated anywhere.
func assertRingInvariant(t *testing.T, ring orb.Ring) {
	t.Helper()
	if ring == nil {
		return
	}
	if len(ring) < MinRingPoints {
		t.Fatalf("ring has %d points, want >= %d", len(ring), MinRingPoints)
	}
	for i := range ring {
		for j := i + 1; j < len(ring); j++ {
			if SamePoint(ring[i], ring[j]) {
				t.Errorf("points %d and %d are equal: %v", i, j, ring[i])
			}
		}
	}
}

func ringEqual(a, b orb.Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
