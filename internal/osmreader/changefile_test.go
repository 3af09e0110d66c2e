package osmreader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flexosm/flex2pg/internal/osc"
)

const sampleOSC = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="test">
  <create>
    <node id="1" lat="43.7384" lon="7.4246" version="1" changeset="123"/>
  </create>
  <delete>
    <way id="998"/>
  </delete>
</osmChange>`

func TestChangefileReaderRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "changes.osc")
	if err := os.WriteFile(path, []byte(sampleOSC), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	r := NewChangefileReader()
	changes, errs := r.Run(context.Background(), path)

	var got []Change
	for c := range changes {
		got = append(got, c)
	}
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(got))
	}

	stats := r.Stats()
	if stats.NodesCreated != 1 {
		t.Errorf("NodesCreated = %d, want 1", stats.NodesCreated)
	}
	if stats.WaysDeleted != 1 {
		t.Errorf("WaysDeleted = %d, want 1", stats.WaysDeleted)
	}
}

func TestChangeActionAliasesMatchOSC(t *testing.T) {
	if ChangeCreate != osc.ActionCreate || ChangeModify != osc.ActionModify || ChangeDelete != osc.ActionDelete {
		t.Error("osmreader change action aliases drifted from osc package constants")
	}
}
