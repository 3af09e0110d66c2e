package osc

import (
	"context"
	"strings"
	"testing"
)

// monacoOSC is a small synthetic OSC batch covering one create/modify/delete
// each, against Monaco-ish IDs and coordinates (this repo's own fixture
// region — see the Geofabrik regions in internal/replication/source.go).
const monacoOSC = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="flex2pg-test">
  <create>
    <node id="1" lat="43.7384" lon="7.4246" version="1" changeset="123" timestamp="2024-01-15T12:00:00Z" user="testuser" uid="1">
      <tag k="name" v="Monte-Carlo Casino"/>
      <tag k="tourism" v="attraction"/>
    </node>
    <way id="100" version="1" changeset="124">
      <nd ref="1"/>
      <nd ref="2"/>
      <nd ref="3"/>
      <tag k="highway" v="primary"/>
    </way>
  </create>
  <modify>
    <node id="2" lat="43.7390" lon="7.4250" version="2">
      <tag k="name" v="Port Hercule"/>
    </node>
    <relation id="200" version="2">
      <member type="way" ref="100" role="outer"/>
      <member type="way" ref="101" role="inner"/>
      <tag k="type" v="multipolygon"/>
    </relation>
  </modify>
  <delete>
    <node id="999"/>
    <way id="998"/>
  </delete>
</osmChange>`

func collectChanges(t *testing.T, data string) ([]Change, *Parser) {
	t.Helper()
	parser := NewParser()
	changes, errCh := parser.ParseReader(context.Background(), strings.NewReader(data))

	var all []Change
	for c := range changes {
		all = append(all, c)
	}
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return all, parser
}

func TestParseBatchCounts(t *testing.T) {
	changes, parser := collectChanges(t, monacoOSC)

	stats := parser.Stats()
	want := Stats{NodesCreated: 1, NodesModified: 1, NodesDeleted: 1,
		WaysCreated: 1, WaysDeleted: 1, RelationsModified: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
	if stats.Total() != 6 {
		t.Errorf("Total() = %d, want 6", stats.Total())
	}
	if len(changes) != 6 {
		t.Errorf("got %d changes, want 6", len(changes))
	}
}

func TestParseNodeCreate(t *testing.T) {
	changes, _ := collectChanges(t, monacoOSC)

	change := changes[0]
	if change.Action != ActionCreate || change.Type != "node" {
		t.Fatalf("changes[0] = %s %s, want create node", change.Action, change.Type)
	}
	if change.Node == nil {
		t.Fatal("expected node data")
	}
	if change.Node.ID != 1 {
		t.Errorf("ID = %d, want 1", change.Node.ID)
	}
	if change.Node.Tags["name"] != "Monte-Carlo Casino" {
		t.Errorf("tags[name] = %q, want Monte-Carlo Casino", change.Node.Tags["name"])
	}
	if change.Node.Lat == 0 || change.Node.Lon == 0 {
		t.Error("expected scaled lat/lon to be populated")
	}
}

func TestParseWayCreate(t *testing.T) {
	changes, _ := collectChanges(t, monacoOSC)

	for _, c := range changes {
		if c.Type != "way" || c.Action != ActionCreate {
			continue
		}
		if c.Way.ID != 100 {
			t.Errorf("ID = %d, want 100", c.Way.ID)
		}
		if len(c.Way.Nodes) != 3 {
			t.Errorf("Nodes = %v, want 3 refs", c.Way.Nodes)
		}
		if c.Way.Tags["highway"] != "primary" {
			t.Errorf("tags[highway] = %q, want primary", c.Way.Tags["highway"])
		}
		return
	}
	t.Fatal("no way create change found")
}

func TestParseRelationModify(t *testing.T) {
	changes, _ := collectChanges(t, monacoOSC)

	for _, c := range changes {
		if c.Type != "relation" || c.Action != ActionModify {
			continue
		}
		if c.Relation.ID != 200 {
			t.Errorf("ID = %d, want 200", c.Relation.ID)
		}
		if len(c.Relation.Members) != 2 {
			t.Fatalf("Members = %v, want 2", c.Relation.Members)
		}
		if c.Relation.Members[0].Type != "w" {
			t.Errorf("Members[0].Type = %q, want %q (OSC's spelled-out \"way\" maps to the middle tables' short code)", c.Relation.Members[0].Type, "w")
		}
		if c.Relation.Members[0].Role != "outer" {
			t.Errorf("Members[0].Role = %q, want outer", c.Relation.Members[0].Role)
		}
		return
	}
	t.Fatal("no relation modify change found")
}

func TestParseDeleteOnlyCarriesID(t *testing.T) {
	changes, _ := collectChanges(t, monacoOSC)

	for _, c := range changes {
		if c.Action != ActionDelete || c.Type != "node" {
			continue
		}
		if c.Node.ID != 999 {
			t.Errorf("ID = %d, want 999", c.Node.ID)
		}
		if len(c.Node.Tags) != 0 {
			t.Errorf("expected no tags parsed for a delete stub, got %v", c.Node.Tags)
		}
		return
	}
	t.Fatal("no node delete change found")
}

func TestParseEmptyChangeset(t *testing.T) {
	const empty = `<?xml version="1.0"?><osmChange version="0.6"></osmChange>`
	changes, parser := collectChanges(t, empty)

	if len(changes) != 0 {
		t.Errorf("expected no changes, got %d", len(changes))
	}
	if parser.Stats().Total() != 0 {
		t.Errorf("expected zero stats, got %+v", parser.Stats())
	}
}
