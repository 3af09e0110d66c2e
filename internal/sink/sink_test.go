package sink

import (
	"testing"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/schema"
)

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	tbl := &schema.Table{
		Name:   "osm_points",
		Schema: "public",
		IDColumn: &schema.IDColumn{
			Kind:   schema.IDKindNode,
			Column: "osm_id",
		},
		Columns: []schema.Column{
			{Name: "geom", Type: schema.TypePoint, SRID: 4326},
			{Name: "name", Type: schema.TypeText},
		},
	}
	if err := r.Register(tbl); err != nil {
		t.Fatalf("registering table: %v", err)
	}
	return r
}

func TestSinkInsertBuffersRowUntilWatermark(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WatermarkBytes = 1 << 30 // large enough that Insert never auto-flushes
	r := newTestRegistry(t)

	s := NewSink(cfg, nil, r, true)

	row := evaluator.Row{
		Table:   "osm_points",
		Values:  map[string]interface{}{"osm_id": int64(1), "name": "Test"},
		GeomWKB: []byte{0x01, 0x02},
	}

	buf := s.buffers["osm_points"]
	buf.mu.Lock()
	before := len(buf.rows)
	buf.mu.Unlock()

	if err := s.Insert(nil, row); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	buf.mu.Lock()
	after := len(buf.rows)
	buf.mu.Unlock()

	if after != before+1 {
		t.Errorf("expected one buffered row, got %d -> %d", before, after)
	}
}

func TestSinkInsertUnknownTableErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	r := newTestRegistry(t)
	s := NewSink(cfg, nil, r, true)

	err := s.Insert(nil, evaluator.Row{Table: "does_not_exist"})
	if err == nil {
		t.Error("expected an error for an unregistered table")
	}
}

func TestStagingNameDiffersInImportMode(t *testing.T) {
	cfg := config.DefaultConfig()
	r := newTestRegistry(t)

	imp := NewSink(cfg, nil, r, true)
	upd := NewSink(cfg, nil, r, false)

	tbl := r.Get("osm_points")
	if imp.stagingName(tbl) == tbl.Name {
		t.Error("import mode should use a distinct staging table name")
	}
	if upd.stagingName(tbl) != tbl.Name {
		t.Error("update mode should write directly to the live table")
	}
}
