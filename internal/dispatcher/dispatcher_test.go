package dispatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/geombuild"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/schema"
)

func TestTableMatchesKind(t *testing.T) {
	cases := []struct {
		kind    schema.IDColumnKind
		objType string
		want    bool
	}{
		{schema.IDKindNode, "node", true},
		{schema.IDKindNode, "way", false},
		{schema.IDKindWay, "way", true},
		{schema.IDKindRelation, "relation", true},
		{schema.IDKindAny, "node", true},
		{schema.IDKindAny, "way", true},
		{schema.IDKindArea, "way", true},
		{schema.IDKindArea, "node", false},
		{schema.IDKindArea, "relation", true},
	}

	for _, c := range cases {
		idc := &schema.IDColumn{Kind: c.kind}
		matches, _ := tableMatchesKind(idc, c.objType)
		if matches != c.want {
			t.Errorf("tableMatchesKind(%s, %s) = %v, want %v", c.kind, c.objType, matches, c.want)
		}
	}
}

func TestMemberTypeRoundTrip(t *testing.T) {
	for _, short := range []string{"n", "w", "r"} {
		full := memberType(short)
		if got := shortMemberType(full); got != short {
			t.Errorf("round trip for %q produced %q via %q", short, got, full)
		}
	}
}

func TestNodeToObjectUnscalesCoords(t *testing.T) {
	n := &middle.RawNode{ID: 42, Lat: middle.ScaleCoord(51.5), Lon: middle.ScaleCoord(-0.1)}
	obj := nodeToObject(n)

	if obj.ID != 42 || obj.Type != "node" {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if diff := obj.Lat - 51.5; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Lat = %v, want ~51.5", obj.Lat)
	}
	if diff := obj.Lon - (-0.1); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Lon = %v, want ~-0.1", obj.Lon)
	}
}

func TestStatsStartsAtZero(t *testing.T) {
	d := New(nil, nil, nil, nil)
	stats := d.Stats()
	if stats.NodesProcessed != 0 || stats.WaysProcessed != 0 || stats.RelationsProcessed != 0 {
		t.Errorf("expected zero stats for a fresh dispatcher, got %+v", stats)
	}
}

func TestNewWithoutExpireOutputLeavesTrackerNil(t *testing.T) {
	d := New(&config.Config{}, nil, nil, nil)
	if d.expire != nil {
		t.Error("expected no expiry tracker when ExpireOutput is unset")
	}
	// markExpired and writeExpiredTiles must both be no-ops in this state.
	d.markExpired(&evaluator.Object{Type: "node", Lat: 1, Lon: 1})
	if err := d.writeExpiredTiles(); err != nil {
		t.Errorf("writeExpiredTiles with no tracker should be a no-op, got %v", err)
	}
}

func TestMarkExpiredAndWriteExpiredTiles(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "expired.tiles")

	cfg := &config.Config{ExpireOutput: outPath, ExpireMinZoom: 10, ExpireMaxZoom: 10}
	d := New(cfg, nil, nil, nil)
	if d.expire == nil {
		t.Fatal("expected New to build a tracker when ExpireOutput is set")
	}

	d.markExpired(&evaluator.Object{Type: "node", Lat: 51.5074, Lon: -0.1278})
	d.markExpired(&evaluator.Object{Type: "way", Coords: []float64{7.0, 43.0, 7.1, 43.1}})
	d.markExpired(&evaluator.Object{
		Type: "relation",
		MemberWays: []geombuild.Member{
			{WayID: 1, Coords: []float64{7.2, 43.2, 7.3, 43.3}},
		},
	})

	if d.expire.Count() == 0 {
		t.Fatal("expected markExpired to register at least one tile")
	}

	if err := d.writeExpiredTiles(); err != nil {
		t.Fatalf("writeExpiredTiles: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading expire output: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected a non-empty expire output file")
	}
}
