package geombuild

import "testing"

func TestMergeRingsJoinsAtSharedEndpoint(t *testing.T) {
	r1 := newRing(1, []int64{1, 2, 3}, []float64{0, 0, 1, 0, 1, 1}, "outer")
	r2 := newRing(2, []int64{3, 4, 1}, []float64{1, 1, 0, 1, 0, 0}, "outer")

	result := mergeRings([]*ring{r1, r2})
	if len(result) != 1 {
		t.Fatalf("expected a single merged ring, got %d", len(result))
	}
	r := result[0]
	if !r.isClosed() {
		t.Fatalf("merged ring is not closed: %v", r.refs)
	}
	expected := []int64{1, 2, 3, 4, 1}
	if len(r.refs) != len(expected) {
		t.Fatalf("refs = %v, want %v", r.refs, expected)
	}
	for i, want := range expected {
		if r.refs[i] != want {
			t.Fatalf("refs = %v, want %v", r.refs, expected)
		}
	}
}

func TestMergeRingsReverseEndpoints(t *testing.T) {
	r1 := newRing(1, []int64{1, 2, 3, 4}, []float64{0, 0, 1, 0, 1, 1, 2, 1}, "")
	r2 := newRing(2, []int64{6, 5, 4}, []float64{3, 3, 2, 2, 2, 1}, "")
	r3 := newRing(3, []int64{1, 7, 6}, []float64{0, 0, 0, 5, 3, 3}, "")

	result := mergeRings([]*ring{r1, r2, r3})
	if len(result) != 1 {
		t.Fatalf("expected a single merged ring, got %d", len(result))
	}
	if !result[0].isClosed() {
		t.Fatalf("merged ring is not closed: %v", result[0].refs)
	}
}

func TestShoelaceAreaSquare(t *testing.T) {
	square := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	got := shoelaceArea(square)
	if got < 0 {
		got = -got
	}
	if got != 1 {
		t.Errorf("shoelaceArea() = %v, want 1", got)
	}
}

func TestPointInRing(t *testing.T) {
	square := []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}
	if !pointInRing(5, 5, square) {
		t.Error("center point should be inside square")
	}
	if pointInRing(20, 20, square) {
		t.Error("far point should be outside square")
	}
}

func TestBuildMultipolygonSingleShellWithHole(t *testing.T) {
	outer := Member{
		WayID: 1,
		Refs:  []int64{1, 2, 3, 4, 1},
		Coords: []float64{
			0, 0,
			10, 0,
			10, 10,
			0, 10,
			0, 0,
		},
		Role: "outer",
	}
	inner := Member{
		WayID: 2,
		Refs:  []int64{5, 6, 7, 8, 5},
		Coords: []float64{
			2, 2,
			4, 2,
			4, 4,
			2, 4,
			2, 2,
		},
		Role: "inner",
	}

	polygons, err := BuildMultipolygon(100, []Member{outer, inner})
	if err != nil {
		t.Fatalf("BuildMultipolygon() error = %v", err)
	}
	if len(polygons) != 1 {
		t.Fatalf("expected one polygon (shell+hole), got %d", len(polygons))
	}
	if len(polygons[0]) != 2 {
		t.Fatalf("expected outer ring plus one hole, got %d rings", len(polygons[0]))
	}
}

func TestBuildMultipolygonNoRingsIsConstructionError(t *testing.T) {
	_, err := BuildMultipolygon(1, nil)
	if err == nil {
		t.Fatal("expected a construction error for an empty member set")
	}
	if _, ok := err.(*ConstructionError); !ok {
		t.Fatalf("expected *ConstructionError, got %T", err)
	}
}
