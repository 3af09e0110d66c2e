package osmreader

import (
	"testing"

	"github.com/paulmach/osm"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/geombuild"
)

type fakeNodeStore struct {
	coords map[int64][2]float64
}

func newFakeNodeStore() *fakeNodeStore {
	return &fakeNodeStore{coords: make(map[int64][2]float64)}
}

func (f *fakeNodeStore) PutNode(id int64, lat, lon float64) {
	f.coords[id] = [2]float64{lat, lon}
}

func (f *fakeNodeStore) GetCoords(id int64) (float64, float64, bool) {
	c, ok := f.coords[id]
	if !ok {
		return 0, 0, false
	}
	return c[0], c[1], true
}

func (f *fakeNodeStore) Close() error { return nil }

func TestNodeToObject(t *testing.T) {
	n := &osm.Node{
		ID:  1,
		Lat: 43.7384, Lon: 7.4246,
		Version: 3, ChangesetID: 99,
		Tags: osm.Tags{{Key: "amenity", Value: "cafe"}},
	}

	obj := nodeToObject(n)
	if obj.ID != 1 || obj.Type != "node" || obj.Version != 3 {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if obj.Tags["amenity"] != "cafe" {
		t.Errorf("tags not carried over: %+v", obj.Tags)
	}
}

func TestWayToObjectResolvesCoordsAndDetectsClosure(t *testing.T) {
	nodes := newFakeNodeStore()
	nodes.PutNode(1, 43.0, 7.0)
	nodes.PutNode(2, 43.1, 7.1)
	nodes.PutNode(3, 43.2, 7.2)

	r := &PBFReader{nodes: nodes}

	way := &osm.Way{
		ID:    100,
		Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 1}},
		Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
	}

	obj, member, ok, missingNode := r.wayToObject(way, nil)
	if !ok {
		t.Fatal("expected wayToObject to succeed")
	}
	if missingNode {
		t.Error("missingNode should be false on success")
	}
	if !obj.IsClosed {
		t.Error("expected way with matching first/last node to be closed")
	}
	if len(obj.Coords) != 8 {
		t.Errorf("expected 8 flattened coordinates (4 nodes), got %d", len(obj.Coords))
	}
	if member.WayID != 100 || len(member.Refs) != 4 {
		t.Errorf("unexpected member: %+v", member)
	}
}

func TestWayToObjectMissingNodeIsSkipped(t *testing.T) {
	nodes := newFakeNodeStore()
	nodes.PutNode(1, 43.0, 7.0)
	r := &PBFReader{nodes: nodes}

	way := &osm.Way{ID: 101, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}}

	_, _, ok, missingNode := r.wayToObject(way, nil)
	if ok {
		t.Error("expected wayToObject to fail when a referenced node is unresolved")
	}
	if !missingNode {
		t.Error("expected missingNode to be true when a referenced node is unresolved")
	}
}

func TestWayToObjectFiltersOutsideBBox(t *testing.T) {
	nodes := newFakeNodeStore()
	nodes.PutNode(1, 10.0, 10.0)
	nodes.PutNode(2, 10.1, 10.1)
	r := &PBFReader{nodes: nodes}

	bbox, err := config.ParseBBox("0,0,1,1")
	if err != nil {
		t.Fatalf("parsing bbox: %v", err)
	}

	way := &osm.Way{ID: 102, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}}
	_, _, ok, missingNode := r.wayToObject(way, bbox)
	if ok {
		t.Error("expected way entirely outside bbox to be filtered out")
	}
	if missingNode {
		t.Error("bbox exclusion is not a geometry-construction failure")
	}
}

func TestRelationToObjectResolvesCachedMemberWays(t *testing.T) {
	r := &PBFReader{}
	member := geombuild.Member{
		WayID:  100,
		Refs:   []int64{1, 2, 3},
		Coords: []float64{7.0, 43.0, 7.1, 43.1, 7.2, 43.2},
	}
	r.wayCache.Store(int64(100), member)

	rel := &osm.Relation{
		ID: 200,
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 100, Role: "outer"},
			{Type: osm.TypeNode, Ref: 1, Role: "label"},
		},
		Tags: osm.Tags{{Key: "type", Value: "multipolygon"}},
	}

	obj := r.relationToObject(rel)
	if obj.ID != 200 || obj.Type != "relation" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if len(obj.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(obj.Members))
	}
	if len(obj.MemberWays) != 1 {
		t.Fatalf("expected 1 resolved member way, got %d", len(obj.MemberWays))
	}
	if obj.MemberWays[0].Role != "outer" {
		t.Errorf("expected role to be carried from the relation member, got %q", obj.MemberWays[0].Role)
	}
}

func TestTagsToMap(t *testing.T) {
	tags := osm.Tags{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
	m := tagsToMap(tags)
	if m["a"] != "1" || m["b"] != "2" || len(m) != 2 {
		t.Errorf("unexpected map: %+v", m)
	}
}
