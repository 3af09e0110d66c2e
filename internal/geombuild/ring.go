// Package geombuild assembles OSM primitives into geometries: points from
// nodes, linestrings/polygons from ways, and multipolygons from
// multipolygon/boundary relations. The ring-assembly algorithm for
// relations is pure Go (no cgo geometry library): it merges incomplete
// ways at shared endpoints, then classifies the resulting closed rings as
// shells or holes using ring area and point-in-ring containment, the same
// shape of algorithm the reference material implements on top of GEOS.
package geombuild

// ring is one closed or still-open line, built by concatenating one or
// more member ways. coords is a flat [lon0, lat0, lon1, lat1, ...] array
// kept in lockstep with refs (node ids), so merging can match endpoints by
// node id without caring about coordinate precision.
type ring struct {
	wayIDs []int64
	refs   []int64
	coords []float64

	role        string // "outer", "inner", or "" if unset/mixed
	area        float64
	containedBy int
	holes       map[*ring]bool
}

func newRing(wayID int64, refs []int64, coords []float64, role string) *ring {
	return &ring{
		wayIDs:      []int64{wayID},
		refs:        append([]int64(nil), refs...),
		coords:      append([]float64(nil), coords...),
		role:        role,
		containedBy: -1,
		holes:       make(map[*ring]bool),
	}
}

func (r *ring) isClosed() bool {
	return len(r.refs) >= 4 && r.refs[0] == r.refs[len(r.refs)-1]
}

func reverseInt64(s []int64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseFloat64Pairs(s []float64) {
	n := len(s) / 2
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		s[i*2], s[j*2] = s[j*2], s[i*2]
		s[i*2+1], s[j*2+1] = s[j*2+1], s[i*2+1]
	}
}

// mergeRings concatenates rings that share an endpoint node id until no
// more merges are possible, the same endpoint-map approach the reference
// material uses for assembling multipolygon relations from member ways.
func mergeRings(rings []*ring) []*ring {
	endpoints := make(map[int64]*ring)

	for _, r := range rings {
		if len(r.refs) < 2 {
			continue
		}
		left := r.refs[0]
		right := r.refs[len(r.refs)-1]

		if orig, ok := endpoints[left]; ok {
			delete(endpoints, left)
			if left == orig.refs[len(orig.refs)-1] {
				orig.refs = append(orig.refs, r.refs[1:]...)
				orig.coords = append(orig.coords, r.coords[2:]...)
			} else {
				reverseInt64(orig.refs)
				reverseFloat64Pairs(orig.coords)
				orig.refs = append(orig.refs, r.refs[1:]...)
				orig.coords = append(orig.coords, r.coords[2:]...)
			}
			orig.wayIDs = append(orig.wayIDs, r.wayIDs...)
			mergeRole(orig, r)

			if rightRing, ok := endpoints[right]; ok && rightRing != orig {
				delete(endpoints, right)
				if right == rightRing.refs[0] {
					orig.refs = append(orig.refs, rightRing.refs[1:]...)
					orig.coords = append(orig.coords, rightRing.coords[2:]...)
				} else {
					reverseInt64(rightRing.refs)
					reverseFloat64Pairs(rightRing.coords)
					orig.refs = append(orig.refs[:len(orig.refs)-1], rightRing.refs...)
					orig.coords = append(orig.coords[:len(orig.coords)-2], rightRing.coords...)
				}
				orig.wayIDs = append(orig.wayIDs, rightRing.wayIDs...)
				mergeRole(orig, rightRing)
				newRight := orig.refs[len(orig.refs)-1]
				endpoints[newRight] = orig
			} else {
				endpoints[right] = orig
			}
		} else if orig, ok := endpoints[right]; ok {
			delete(endpoints, right)
			if right == orig.refs[0] {
				orig.refs = append(append([]int64(nil), r.refs[:len(r.refs)-1]...), orig.refs...)
				orig.coords = append(append([]float64(nil), r.coords[:len(r.coords)-2]...), orig.coords...)
			} else {
				reverseInt64(r.refs)
				reverseFloat64Pairs(r.coords)
				orig.refs = append(orig.refs[:len(orig.refs)-1], r.refs...)
				orig.coords = append(orig.coords[:len(orig.coords)-2], r.coords...)
			}
			orig.wayIDs = append(orig.wayIDs, r.wayIDs...)
			mergeRole(orig, r)
			endpoints[left] = orig
		} else {
			endpoints[left] = r
			endpoints[right] = r
		}
	}

	unique := make(map[*ring]bool)
	for _, r := range endpoints {
		unique[r] = true
	}
	result := make([]*ring, 0, len(unique))
	for r := range unique {
		result = append(result, r)
	}
	return result
}

// mergeRole keeps a consistent role hint across a merge: two segments
// agreeing keep it, disagreeing or unset segments clear it so topology
// alone decides later.
func mergeRole(dst, src *ring) {
	if dst.role != src.role {
		dst.role = ""
	}
}
