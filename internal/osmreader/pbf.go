package osmreader

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/geombuild"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/middle"
)

// PBFReader performs the two-pass PBF import read: pass one fills a
// NodeStore with every node's coordinates, pass two streams nodes, ways
// (with coordinates resolved from the NodeStore) and relations (with
// member way geometry resolved from an in-memory way cache built during
// the same pass) as evaluator.Object values.
type PBFReader struct {
	cfg   *config.Config
	nodes middle.NodeStore

	wayCache sync.Map // wayID int64 -> geombuild.Member

	bytesTotal int64
	counters   counters
}

// Stats tracks read-side counters for progress reporting.
type Stats struct {
	BytesTotal  int64
	Nodes       int64
	Ways        int64
	Relations   int64
	WaysDropped int64 // ways skipped because a referenced node never resolved
}

type counters struct {
	nodes, ways, relations, waysDropped atomic.Int64
}

// Streams holds the output channels from Run.
type Streams struct {
	Objects <-chan *evaluator.Object
	Errors  <-chan error
}

// NewPBFReader creates a reader that resolves way/relation coordinates
// through the given NodeStore (dense mmap for import, Postgres-backed for
// slim update continuity).
func NewPBFReader(cfg *config.Config, nodes middle.NodeStore) *PBFReader {
	return &PBFReader{cfg: cfg, nodes: nodes}
}

// Stats returns a snapshot of read counters.
func (r *PBFReader) Stats() Stats {
	return Stats{
		BytesTotal:  r.bytesTotal,
		Nodes:       r.counters.nodes.Load(),
		Ways:        r.counters.ways.Load(),
		Relations:   r.counters.relations.Load(),
		WaysDropped: r.counters.waysDropped.Load(),
	}
}

// Run performs the two-pass read of cfg.InputFile.
func (r *PBFReader) Run(ctx context.Context) (*Streams, error) {
	log := logger.Get()

	f, err := os.Open(r.cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", r.cfg.InputFile, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r.bytesTotal = info.Size()

	log.Info("pass 1: indexing node coordinates")
	start := time.Now()
	nodeCount, err := r.indexNodes(ctx, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	log.Info("pass 1 complete", zap.Int64("nodes", nodeCount), zap.Duration("duration", time.Since(start).Round(time.Second)))

	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, err
	}

	return r.streamObjects(ctx, f), nil
}

func (r *PBFReader) indexNodes(ctx context.Context, f *os.File) (int64, error) {
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()

	var count int64
	bbox := r.cfg.BBox

	for scanner.Scan() {
		obj := scanner.Object()
		switch n := obj.(type) {
		case *osm.Node:
			r.nodes.PutNode(int64(n.ID), n.Lat, n.Lon)
			if bbox == nil || !bbox.IsSet || bbox.Contains(n.Lat, n.Lon) {
				count++
			}
		case *osm.Way:
			// Node block is exhausted once the first way appears.
			return count, nil
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return 0, err
	}
	return count, nil
}

func (r *PBFReader) streamObjects(ctx context.Context, f *os.File) *Streams {
	log := logger.Get()

	objChan := make(chan *evaluator.Object, 50000)
	errChan := make(chan error, 1)

	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	bbox := r.cfg.BBox

	go func() {
		defer f.Close()
		defer scanner.Close()
		defer close(objChan)
		defer close(errChan)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			switch o := scanner.Object().(type) {
			case *osm.Node:
				if bbox != nil && bbox.IsSet && !bbox.Contains(o.Lat, o.Lon) {
					continue
				}
				r.counters.nodes.Add(1)
				if !send(ctx, objChan, nodeToObject(o)) {
					return
				}

			case *osm.Way:
				obj, member, ok, missingNode := r.wayToObject(o, bbox)
				if !ok {
					if missingNode {
						r.counters.waysDropped.Add(1)
					}
					continue
				}
				r.counters.ways.Add(1)
				r.wayCache.Store(int64(o.ID), member)
				if !send(ctx, objChan, obj) {
					return
				}

			case *osm.Relation:
				r.counters.relations.Add(1)
				if !send(ctx, objChan, r.relationToObject(o)) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil && err != io.EOF {
			select {
			case errChan <- err:
			default:
			}
		}

		r.wayCache = sync.Map{}
		log.Info("pass 2 complete",
			zap.Int64("ways", r.counters.ways.Load()),
			zap.Int64("relations", r.counters.relations.Load()))
	}()

	return &Streams{Objects: objChan, Errors: errChan}
}

func send(ctx context.Context, ch chan<- *evaluator.Object, obj *evaluator.Object) bool {
	select {
	case ch <- obj:
		return true
	case <-ctx.Done():
		return false
	}
}

func nodeToObject(n *osm.Node) *evaluator.Object {
	return &evaluator.Object{
		ID:        int64(n.ID),
		Type:      "node",
		Version:   int(n.Version),
		Timestamp: n.Timestamp,
		Changeset: int64(n.ChangesetID),
		UID:       int(n.UserID),
		User:      n.User,
		Tags:      tagsToMap(n.Tags),
		Lat:       n.Lat,
		Lon:       n.Lon,
	}
}

// wayToObject resolves a way's node coordinates and assembles it into an
// Object. missingNode distinguishes a genuine geometry-construction failure
// (a referenced node never resolved) from an intentional bbox/too-short
// exclusion, so the caller only counts the former as a dropped row.
func (r *PBFReader) wayToObject(w *osm.Way, bbox *config.BBox) (obj *evaluator.Object, member geombuild.Member, ok bool, missingNode bool) {
	coords := make([]float64, 0, len(w.Nodes)*2)
	refs := make([]int64, 0, len(w.Nodes))
	inBBox := bbox == nil || !bbox.IsSet

	for _, ref := range w.Nodes {
		lat, lon, found := r.nodes.GetCoords(int64(ref.ID))
		if !found {
			return nil, geombuild.Member{}, false, true
		}
		coords = append(coords, lon, lat)
		refs = append(refs, int64(ref.ID))
		if !inBBox && bbox.Contains(lat, lon) {
			inBBox = true
		}
	}

	if len(coords) < 4 || !inBBox {
		return nil, geombuild.Member{}, false, false
	}

	isClosed := len(w.Nodes) >= 4 && w.Nodes[0].ID == w.Nodes[len(w.Nodes)-1].ID

	obj = &evaluator.Object{
		ID:        int64(w.ID),
		Type:      "way",
		Version:   int(w.Version),
		Timestamp: w.Timestamp,
		Changeset: int64(w.ChangesetID),
		UID:       int(w.UserID),
		User:      w.User,
		Tags:      tagsToMap(w.Tags),
		NodeRefs:  refs,
		IsClosed:  isClosed,
		Coords:    coords,
	}

	member = geombuild.Member{WayID: int64(w.ID), Refs: refs, Coords: coords}
	return obj, member, true, false
}

func (r *PBFReader) relationToObject(rel *osm.Relation) *evaluator.Object {
	members := make([]evaluator.Member, len(rel.Members))
	var memberWays []geombuild.Member

	for i, m := range rel.Members {
		var memberType string
		switch m.Type {
		case osm.TypeNode:
			memberType = "node"
		case osm.TypeWay:
			memberType = "way"
		case osm.TypeRelation:
			memberType = "relation"
		}
		members[i] = evaluator.Member{Type: memberType, Ref: int64(m.Ref), Role: m.Role}

		if m.Type == osm.TypeWay {
			if cached, ok := r.wayCache.Load(int64(m.Ref)); ok {
				wm := cached.(geombuild.Member)
				wm.Role = m.Role
				memberWays = append(memberWays, wm)
			}
		}
	}

	return &evaluator.Object{
		ID:         int64(rel.ID),
		Type:       "relation",
		Version:    int(rel.Version),
		Timestamp:  rel.Timestamp,
		Changeset:  int64(rel.ChangesetID),
		UID:        int(rel.UserID),
		User:       rel.User,
		Tags:       tagsToMap(rel.Tags),
		Members:    members,
		MemberWays: memberWays,
	}
}

func tagsToMap(tags osm.Tags) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[tag.Key] = tag.Value
	}
	return m
}
