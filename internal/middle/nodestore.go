package middle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/flexosm/flex2pg/internal/nodeindex"
)

// NodeStore resolves node coordinates during way assembly. Import mode uses
// a dense mmap-backed index (no per-node tags, no tombstones, no reverse
// lookups: ways are assembled once, while nodes are still being streamed in
// id order) since it only ever needs to answer "where is this node right
// now". Update mode needs the fully-indexed Postgres representation,
// because a later diff may look up an individual node's tags or mark it
// deleted independently of the ways that reference it.
type NodeStore interface {
	PutNode(id int64, lat, lon float64)
	GetCoords(id int64) (lat, lon float64, ok bool)
	Close() error
}

// denseNodeStore adapts nodeindex.MmapIndex to NodeStore for import mode.
type denseNodeStore struct {
	idx *nodeindex.MmapIndex
}

// NewDenseNodeStore creates the mmap-backed coordinate index used during
// import, rooted under the run's output directory.
func NewDenseNodeStore(outputDir string) (NodeStore, error) {
	path := filepath.Join(outputDir, "nodes.idx")
	idx, err := nodeindex.NewMmapIndex(path)
	if err != nil {
		return nil, fmt.Errorf("creating dense node index: %w", err)
	}
	return &denseNodeStore{idx: idx}, nil
}

func (d *denseNodeStore) PutNode(id int64, lat, lon float64) {
	d.idx.Put(id, lat, lon)
}

func (d *denseNodeStore) GetCoords(id int64) (float64, float64, bool) {
	return d.idx.Get(id)
}

func (d *denseNodeStore) Close() error {
	return d.idx.Close()
}

// pgNodeStore adapts MiddleStore's planet_osm_nodes table to NodeStore for
// update mode, where nodes already loaded during the initial import (or a
// prior update) must remain individually addressable.
type pgNodeStore struct {
	store *MiddleStore
	ctx   context.Context
}

// NewPostgresNodeStore wraps a MiddleStore as a NodeStore bound to ctx.
func NewPostgresNodeStore(ctx context.Context, store *MiddleStore) NodeStore {
	return &pgNodeStore{store: store, ctx: ctx}
}

func (p *pgNodeStore) PutNode(id int64, lat, lon float64) {
	p.store.UpdateNode(p.ctx, &RawNode{
		ID:  id,
		Lat: ScaleCoord(lat),
		Lon: ScaleCoord(lon),
	})
}

func (p *pgNodeStore) GetCoords(id int64) (float64, float64, bool) {
	node, err := p.store.GetNode(p.ctx, id)
	if err != nil || node == nil {
		return 0, 0, false
	}
	return UnscaleCoord(node.Lat), UnscaleCoord(node.Lon), true
}

func (p *pgNodeStore) Close() error {
	return nil
}

// NewNodeStore picks the dense mmap store for import mode and the
// Postgres-backed store for update mode, per the storage-mode split.
func NewNodeStore(ctx context.Context, importMode bool, outputDir string, store *MiddleStore) (NodeStore, error) {
	if importMode {
		return NewDenseNodeStore(outputDir)
	}
	return NewPostgresNodeStore(ctx, store), nil
}
