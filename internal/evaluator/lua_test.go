package evaluator

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "style.lua")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing style script: %v", err)
	}
	return path
}

const pointsScript = `
local points = osm2pgsql.define_table({
    name = "osm_points",
    ids = { type = "node" },
    columns = {
        { column = "geom", type = "point" },
        { column = "name", type = "text" },
    },
})

function osm2pgsql.process_node(object)
    points:insert({
        geom = object:as_point(),
        name = object.tags.name,
    })
end
`

func TestLuaEvaluatorProcessNodeInsertsRow(t *testing.T) {
	path := writeScript(t, pointsScript)

	e, err := NewLuaEvaluator(path, 4326, "public")
	if err != nil {
		t.Fatalf("NewLuaEvaluator() error = %v", err)
	}
	defer e.Close()

	if !e.HasProcessNode() {
		t.Fatal("expected process_node to be defined")
	}

	obj := &Object{
		ID:   42,
		Type: "node",
		Lat:  51.5,
		Lon:  -0.1,
		Tags: map[string]string{"name": "Test Node"},
	}

	rows, err := e.ProcessNode(obj)
	if err != nil {
		t.Fatalf("ProcessNode() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].Table != "osm_points" {
		t.Errorf("Table = %q, want osm_points", rows[0].Table)
	}
	if rows[0].Values["name"] != "Test Node" {
		t.Errorf("name = %v, want %q", rows[0].Values["name"], "Test Node")
	}
	if len(rows[0].GeomWKB) == 0 {
		t.Error("expected a non-empty WKB geometry")
	}
	if rows[0].Values["osm_id"] != int64(42) {
		t.Errorf("osm_id = %v, want 42", rows[0].Values["osm_id"])
	}

	tbl := e.Tables().Get("osm_points")
	if tbl == nil {
		t.Fatal("expected osm_points to be registered")
	}
	if tbl.GeometryColumn() == nil {
		t.Error("expected a geometry column on osm_points")
	}
}

const wayPolygonScript = `
local polys = osm2pgsql.define_table({
    name = "osm_polygons",
    ids = { type = "way" },
    columns = {
        { column = "geom", type = "polygon" },
        { column = "building", type = "text" },
    },
})

function osm2pgsql.process_way(object)
    if not object.is_closed then
        return
    end
    polys:insert({
        geom = object:as_polygon(),
        building = object.tags.building,
    })
end
`

func TestLuaEvaluatorProcessWayBuildsPolygon(t *testing.T) {
	path := writeScript(t, wayPolygonScript)

	e, err := NewLuaEvaluator(path, 4326, "public")
	if err != nil {
		t.Fatalf("NewLuaEvaluator() error = %v", err)
	}
	defer e.Close()

	obj := &Object{
		ID:       7,
		Type:     "way",
		IsClosed: true,
		Coords:   []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0},
		Tags:     map[string]string{"building": "yes"},
	}

	rows, err := e.ProcessWay(obj)
	if err != nil {
		t.Fatalf("ProcessWay() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if len(rows[0].GeomWKB) == 0 {
		t.Error("expected a non-empty WKB polygon")
	}
}

func TestLuaEvaluatorRejectsUnknownColumn(t *testing.T) {
	script := `
local t = osm2pgsql.define_table({
    name = "osm_nodes_attrs",
    ids = { type = "node" },
    columns = { { column = "name", type = "text" } },
})

function osm2pgsql.process_node(object)
    t:insert({ name = object.tags.name, bogus = "x" })
end
`
	path := writeScript(t, script)
	e, err := NewLuaEvaluator(path, 4326, "public")
	if err != nil {
		t.Fatalf("NewLuaEvaluator() error = %v", err)
	}
	defer e.Close()

	rows, err := e.ProcessNode(&Object{ID: 1, Type: "node", Tags: map[string]string{"name": "x"}})
	if err != nil {
		t.Fatalf("ProcessNode() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected the row to be rejected, got %d rows", len(rows))
	}
	if e.RejectedRows() != 1 {
		t.Errorf("RejectedRows() = %d, want 1", e.RejectedRows())
	}
}

func TestLuaEvaluatorRejectsMissingNotNullColumn(t *testing.T) {
	script := `
local t = osm2pgsql.define_table({
    name = "osm_nodes_named",
    ids = { type = "node" },
    columns = {
        { column = "name", type = "text", not_null = true },
    },
})

function osm2pgsql.process_node(object)
    -- name is left unset whenever the node has no name tag, which Lua
    -- can't tell apart from setting it to nil.
    if object.tags.name then
        t:insert({ name = object.tags.name })
    else
        t:insert({})
    end
end
`
	path := writeScript(t, script)
	e, err := NewLuaEvaluator(path, 4326, "public")
	if err != nil {
		t.Fatalf("NewLuaEvaluator() error = %v", err)
	}
	defer e.Close()

	rows, err := e.ProcessNode(&Object{ID: 1, Type: "node", Tags: map[string]string{}})
	if err != nil {
		t.Fatalf("ProcessNode() error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected the row to be rejected, got %d rows", len(rows))
	}
	if e.RejectedRows() != 1 {
		t.Errorf("RejectedRows() = %d, want 1", e.RejectedRows())
	}
}
