package geombuild

import (
	"fmt"
	"sort"
)

// Member is one way contributing to a multipolygon/boundary relation:
// its id, its ordered node refs, its flattened [lon,lat,...] coordinates,
// and the role the relation declared for it ("outer", "inner", or "").
type Member struct {
	WayID  int64
	Refs   []int64
	Coords []float64
	Role   string
}

// ConstructionError reports that a geometry could not be built from its
// inputs; callers treat it as a per-object failure, never a crash.
type ConstructionError struct {
	Reason string
}

func (e *ConstructionError) Error() string { return e.Reason }

// buildRings closes every member way into a ring, merging incomplete ways
// at shared endpoints first.
func buildRings(relationID int64, members []Member) ([]*ring, error) {
	var complete []*ring
	var incomplete []*ring

	for _, m := range members {
		if len(m.Coords) < 4 {
			continue
		}
		r := newRing(m.WayID, m.Refs, collapseZeroLengthSegments(m.Coords), m.Role)
		if r.isClosed() {
			complete = append(complete, r)
		} else {
			incomplete = append(incomplete, r)
		}
	}

	merged := mergeRings(incomplete)
	if len(complete)+len(merged) == 0 {
		return nil, &ConstructionError{Reason: fmt.Sprintf("relation %d has no usable rings", relationID)}
	}

	for _, r := range merged {
		if !r.isClosed() {
			return nil, &ConstructionError{Reason: fmt.Sprintf("relation %d: member ways do not form closed rings", relationID)}
		}
	}

	return append(complete, merged...), nil
}

// classifyRings sorts rings by descending absolute area and determines,
// for each ring, the shell that contains it (-1 for a top-level shell) by
// testing a representative point of each smaller ring against each larger
// ring's boundary. Odd containment depth makes a ring a hole of its
// immediate parent; even depth (including zero) makes it a shell.
func classifyRings(rings []*ring) []*ring {
	for _, r := range rings {
		r.area = shoelaceArea(r.coords)
		if r.area < 0 {
			r.area = -r.area
		}
	}
	sort.Slice(rings, func(i, j int) bool { return rings[i].area > rings[j].area })

	for i := 0; i < len(rings); i++ {
		px, py := representativePoint(rings[i].coords)
		for j := 0; j < i; j++ {
			if !pointInRing(px, py, rings[j].coords) {
				continue
			}
			// rings[i] lies inside rings[j]; keep the closest (smallest
			// area, since rings are sorted descending) enclosing ring.
			if rings[i].containedBy == -1 || rings[j].area < rings[rings[i].containedBy].area {
				rings[i].containedBy = j
			}
		}
	}
	return rings
}

func containmentDepth(rings []*ring, idx int) int {
	depth := 0
	for rings[idx].containedBy != -1 {
		idx = rings[idx].containedBy
		depth++
	}
	return depth
}

// assembleShells groups rings into shell/holes sets and honors an explicit
// outer/inner role hint when it agrees with the topological classification
// and disagrees with it only in an ambiguous (self-touching) case; role
// alone never overrides a clear topological result.
func assembleShells(rings []*ring) map[*ring][]*ring {
	shells := make(map[*ring][]*ring)
	for i, r := range rings {
		depth := containmentDepth(rings, i)
		isHole := depth%2 == 1

		if r.role == "inner" && depth == 0 {
			// A ring declared inner but with nothing to be inside of is
			// treated as its own shell; the role hint cannot manufacture
			// an enclosing ring that topology did not find.
			isHole = false
		}

		if isHole {
			parent := rings[r.containedBy]
			shells[parent] = append(shells[parent], r)
		} else if _, ok := shells[r]; !ok {
			shells[r] = nil
		}
	}
	return shells
}

// BuildMultipolygon assembles a set of relation member ways into a
// polygon (single shell) or multipolygon (multiple shells) WKB-ready ring
// set: it returns, per resulting polygon, the outer ring followed by any
// inner rings, all as flat [lon,lat,...] coordinate arrays.
func BuildMultipolygon(relationID int64, members []Member) ([][][]float64, error) {
	rawRings, err := buildRings(relationID, members)
	if err != nil {
		return nil, err
	}

	rings := classifyRings(rawRings)
	shells := assembleShells(rings)

	polygons := make([][][]float64, 0, len(shells))
	for shell, holes := range shells {
		poly := make([][]float64, 0, 1+len(holes))
		poly = append(poly, shell.coords)
		for _, h := range holes {
			poly = append(poly, h.coords)
		}
		polygons = append(polygons, poly)
	}

	// Deterministic order: largest shell first, by outer ring area.
	sort.Slice(polygons, func(i, j int) bool {
		return RingArea(polygons[i][0]) > RingArea(polygons[j][0])
	})

	return polygons, nil
}
