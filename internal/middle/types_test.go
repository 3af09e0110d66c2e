package middle

import "testing"

func TestScaleCoordRoundTrip(t *testing.T) {
	for _, coord := range []float64{51.5074, -0.1278, 0, -89.999999} {
		scaled := ScaleCoord(coord)
		got := UnscaleCoord(scaled)
		if diff := got - coord; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("ScaleCoord/UnscaleCoord(%v) round-tripped to %v", coord, got)
		}
	}
}

func TestRawNodeTombstoneDefaultsFalse(t *testing.T) {
	n := RawNode{ID: 1, Lat: 1, Lon: 1}
	if n.Deleted {
		t.Error("a freshly constructed RawNode should not be a tombstone")
	}
}
