package osmreader

import (
	"context"

	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/osc"
)

// Change is a single parsed OSC entry, re-exported under osmreader so
// dispatcher code only needs one import for whichever source it reads
// from (a one-shot changefile or the replication fetcher).
type Change = osc.Change

// ChangeAction re-exports osc.Action.
type ChangeAction = osc.Action

const (
	ChangeCreate = osc.ActionCreate
	ChangeModify = osc.ActionModify
	ChangeDelete = osc.ActionDelete
)

// ChangefileReader reads a .osc/.osc.gz file into a stream of changes.
type ChangefileReader struct {
	parser *osc.Parser
}

// NewChangefileReader creates a changefile reader.
func NewChangefileReader() *ChangefileReader {
	return &ChangefileReader{parser: osc.NewParser()}
}

// Run streams parsed changes from path.
func (c *ChangefileReader) Run(ctx context.Context, path string) (<-chan Change, <-chan error) {
	return c.parser.ParseFile(ctx, path)
}

// Stats returns parser-side counts of create/modify/delete per primitive type.
func (c *ChangefileReader) Stats() osc.Stats {
	return c.parser.Stats()
}

// ResolvedNode, ResolvedWay and ResolvedRelation are convenience aliases so
// callers building dispatcher logic can refer to the middle's row shapes
// without importing middle directly for this one purpose.
type (
	ResolvedNode     = middle.RawNode
	ResolvedWay      = middle.RawWay
	ResolvedRelation = middle.RawRelation
)
