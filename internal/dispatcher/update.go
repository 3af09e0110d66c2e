package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/geombuild"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/osmreader"
)

// depKey identifies one primitive for the visited set that dedups Apply
// and Propagate work within a single update batch.
type depKey struct {
	kind string
	id   int64
}

type propagationItem struct {
	kind  string
	id    int64
	depth int
}

// RunUpdate drives the Update state machine: Apply processes every change
// in the batch directly against the middle and the output tables; Propagate
// then walks the dependency graph the middle's reverse indexes expose,
// re-rendering ways and relations that reference something Apply touched,
// up to cfg.PropagationMaxDepth levels deep. Stop flushes the sink.
func (d *Dispatcher) RunUpdate(ctx context.Context, changes <-chan osmreader.Change, errs <-chan error) error {
	if d.store == nil {
		return fmt.Errorf("dispatcher: update mode requires a middle store")
	}

	log := logger.Named("update")
	log.Info("apply")

	visited := make(map[depKey]bool)
	var queue []propagationItem

	enqueue := func(kind string, id int64, depth int) {
		k := depKey{kind, id}
		if visited[k] {
			return
		}
		queue = append(queue, propagationItem{kind: kind, id: id, depth: depth})
	}

applyLoop:
	for {
		select {
		case c, ok := <-changes:
			if !ok {
				break applyLoop
			}
			if err := d.applyChange(ctx, c, visited, enqueue); err != nil {
				return fmt.Errorf("applying change: %w", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				return fmt.Errorf("reading changefile: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Info("propagate", zap.Int("queued", len(queue)))
	if err := d.propagate(ctx, queue, visited); err != nil {
		return err
	}

	if err := d.sink.CommitUpdate(ctx); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}

	if err := d.writeExpiredTiles(); err != nil {
		return fmt.Errorf("writing expired tiles: %w", err)
	}

	d.logProgress("update: complete")
	return nil
}

type enqueueFunc func(kind string, id int64, depth int)

func (d *Dispatcher) applyChange(ctx context.Context, c osmreader.Change, visited map[depKey]bool, enqueue enqueueFunc) error {
	switch c.Type {
	case "node":
		return d.applyNode(ctx, c, visited, enqueue)
	case "way":
		return d.applyWay(ctx, c, visited, enqueue)
	case "relation":
		return d.applyRelation(ctx, c, visited, enqueue)
	default:
		return fmt.Errorf("unknown change type %q", c.Type)
	}
}

func (d *Dispatcher) applyNode(ctx context.Context, c osmreader.Change, visited map[depKey]bool, enqueue enqueueFunc) error {
	if c.Node == nil {
		return fmt.Errorf("node change %s missing node payload", c.Action)
	}
	id := c.Node.ID
	visited[depKey{"node", id}] = true

	if err := d.deleteRowsFor(ctx, "node", id); err != nil {
		return err
	}

	if c.Action == osmreader.ChangeDelete {
		if err := d.store.DeleteNode(ctx, id); err != nil {
			return err
		}
	} else {
		if err := d.store.UpdateNode(ctx, c.Node); err != nil {
			return err
		}
		if err := d.emit(ctx, nodeToObject(c.Node)); err != nil {
			return err
		}
	}
	d.nodesProcessed.Add(1)

	ways, err := d.store.WaysUsingNode(ctx, id)
	if err != nil {
		return fmt.Errorf("finding ways using node %d: %w", id, err)
	}
	for _, wayID := range ways {
		enqueue("way", wayID, 1)
	}

	rels, err := d.store.RelationsUsingNode(ctx, id)
	if err != nil {
		return fmt.Errorf("finding relations using node %d: %w", id, err)
	}
	for _, relID := range rels {
		enqueue("relation", relID, 1)
	}
	return nil
}

func (d *Dispatcher) applyWay(ctx context.Context, c osmreader.Change, visited map[depKey]bool, enqueue enqueueFunc) error {
	if c.Way == nil {
		return fmt.Errorf("way change %s missing way payload", c.Action)
	}
	id := c.Way.ID
	visited[depKey{"way", id}] = true

	if err := d.deleteRowsFor(ctx, "way", id); err != nil {
		return err
	}

	if c.Action == osmreader.ChangeDelete {
		if err := d.store.DeleteWay(ctx, id); err != nil {
			return err
		}
	} else {
		if err := d.store.UpdateWay(ctx, c.Way); err != nil {
			return err
		}
		obj, ok, err := d.buildWayObject(ctx, c.Way)
		if err != nil {
			return fmt.Errorf("resolving way %d: %w", id, err)
		}
		if ok {
			if err := d.emit(ctx, obj); err != nil {
				return err
			}
		} else {
			d.rowsDropped.Add(1)
		}
	}
	d.waysProcessed.Add(1)

	rels, err := d.store.RelationsUsingWay(ctx, id)
	if err != nil {
		return fmt.Errorf("finding relations using way %d: %w", id, err)
	}
	for _, relID := range rels {
		enqueue("relation", relID, 1)
	}
	return nil
}

func (d *Dispatcher) applyRelation(ctx context.Context, c osmreader.Change, visited map[depKey]bool, enqueue enqueueFunc) error {
	if c.Relation == nil {
		return fmt.Errorf("relation change %s missing relation payload", c.Action)
	}
	id := c.Relation.ID
	visited[depKey{"relation", id}] = true

	if err := d.deleteRowsFor(ctx, "relation", id); err != nil {
		return err
	}

	if c.Action == osmreader.ChangeDelete {
		if err := d.store.DeleteRelation(ctx, id); err != nil {
			return err
		}
		d.relationsProcessed.Add(1)
	} else {
		if err := d.store.UpdateRelation(ctx, c.Relation); err != nil {
			return err
		}
		obj, ok, err := d.buildRelationObject(ctx, c.Relation)
		if err != nil {
			return fmt.Errorf("resolving relation %d: %w", id, err)
		}
		if ok {
			if err := d.emit(ctx, obj); err != nil {
				return err
			}
		} else {
			d.rowsDropped.Add(1)
		}
		d.relationsProcessed.Add(1)
	}

	supers, err := d.store.RelationsUsingRelation(ctx, id)
	if err != nil {
		return fmt.Errorf("finding relations using relation %d: %w", id, err)
	}
	for _, superID := range supers {
		enqueue("relation", superID, 1)
	}
	return nil
}

// propagate re-renders everything the Apply phase's direct changes touched
// transitively, stopping at cfg.PropagationMaxDepth so a pathological
// dependency chain (e.g. a boundary relation with thousands of members)
// cannot make a single diff batch run unbounded.
func (d *Dispatcher) propagate(ctx context.Context, queue []propagationItem, visited map[depKey]bool) error {
	log := logger.Named("update")

	enqueue := func(kind string, id int64, depth int) {
		k := depKey{kind, id}
		if visited[k] {
			return
		}
		queue = append(queue, propagationItem{kind: kind, id: id, depth: depth})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		k := depKey{item.kind, item.id}
		if visited[k] {
			continue
		}
		visited[k] = true

		if item.depth > d.cfg.PropagationMaxDepth {
			log.Warn("propagation depth exceeded, dropping",
				zap.String("kind", item.kind), zap.Int64("id", item.id), zap.Int("depth", item.depth))
			d.rowsDropped.Add(1)
			continue
		}

		switch item.kind {
		case "way":
			depth := item.depth
			if err := d.repropagateWay(ctx, item.id, func(relID int64) { enqueue("relation", relID, depth+1) }); err != nil {
				return err
			}
		case "relation":
			depth := item.depth
			if err := d.repropagateRelation(ctx, item.id, func(superID int64) { enqueue("relation", superID, depth+1) }); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) repropagateWay(ctx context.Context, wayID int64, enqueueRelation func(int64)) error {
	if err := d.deleteRowsFor(ctx, "way", wayID); err != nil {
		return err
	}

	way, err := d.store.GetWay(ctx, wayID)
	if err != nil {
		return fmt.Errorf("fetching way %d: %w", wayID, err)
	}
	if way != nil {
		obj, ok, err := d.buildWayObject(ctx, way)
		if err != nil {
			return fmt.Errorf("resolving way %d: %w", wayID, err)
		}
		if ok {
			if err := d.emit(ctx, obj); err != nil {
				return err
			}
			d.rowsRebuilt.Add(1)
		}
	}

	rels, err := d.store.RelationsUsingWay(ctx, wayID)
	if err != nil {
		return fmt.Errorf("finding relations using way %d: %w", wayID, err)
	}
	for _, relID := range rels {
		enqueueRelation(relID)
	}
	return nil
}

func (d *Dispatcher) repropagateRelation(ctx context.Context, relID int64, enqueueSuper func(int64)) error {
	if err := d.deleteRowsFor(ctx, "relation", relID); err != nil {
		return err
	}

	rel, err := d.store.GetRelation(ctx, relID)
	if err != nil {
		return fmt.Errorf("fetching relation %d: %w", relID, err)
	}
	if rel == nil {
		return nil
	}

	obj, ok, err := d.buildRelationObject(ctx, rel)
	if err != nil {
		return fmt.Errorf("resolving relation %d: %w", relID, err)
	}
	if ok {
		if err := d.emit(ctx, obj); err != nil {
			return err
		}
		d.rowsRebuilt.Add(1)
	}

	supers, err := d.store.RelationsUsingRelation(ctx, relID)
	if err != nil {
		return fmt.Errorf("finding relations using relation %d: %w", relID, err)
	}
	for _, superID := range supers {
		enqueueSuper(superID)
	}
	return nil
}

func nodeToObject(n *middle.RawNode) *evaluator.Object {
	return &evaluator.Object{
		ID:        n.ID,
		Type:      "node",
		Version:   int(n.Version),
		Changeset: n.Changeset,
		Tags:      n.Tags,
		Lat:       middle.UnscaleCoord(n.Lat),
		Lon:       middle.UnscaleCoord(n.Lon),
	}
}

// buildWayObject resolves a way's node coordinates from the middle and
// builds the Object the evaluator expects. ok is false when a referenced
// node is missing (never seen, or itself tombstoned and not yet cleaned up
// by the change that should have removed this way too).
func (d *Dispatcher) buildWayObject(ctx context.Context, way *middle.RawWay) (*evaluator.Object, bool, error) {
	coords := make([]float64, 0, len(way.Nodes)*2)
	for _, ref := range way.Nodes {
		node, err := d.store.GetNode(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		if node == nil {
			return nil, false, nil
		}
		coords = append(coords, middle.UnscaleCoord(node.Lon), middle.UnscaleCoord(node.Lat))
	}
	if len(coords) < 4 {
		return nil, false, nil
	}

	isClosed := len(way.Nodes) >= 4 && way.Nodes[0] == way.Nodes[len(way.Nodes)-1]

	return &evaluator.Object{
		ID:        way.ID,
		Type:      "way",
		Version:   int(way.Version),
		Changeset: way.Changeset,
		Tags:      way.Tags,
		NodeRefs:  way.Nodes,
		IsClosed:  isClosed,
		Coords:    coords,
	}, true, nil
}

// buildRelationObject resolves every way member's geometry from the middle
// so relation callbacks can assemble multipolygons the same way the import
// path's in-memory way cache does.
func (d *Dispatcher) buildRelationObject(ctx context.Context, rel *middle.RawRelation) (*evaluator.Object, bool, error) {
	members := make([]evaluator.Member, len(rel.Members))
	var memberWays []geombuild.Member

	for i, m := range rel.Members {
		members[i] = evaluator.Member{Type: memberType(m.Type), Ref: m.Ref, Role: m.Role}

		if m.Type != "w" {
			continue
		}
		way, err := d.store.GetWay(ctx, m.Ref)
		if err != nil {
			return nil, false, err
		}
		if way == nil {
			continue
		}
		coords := make([]float64, 0, len(way.Nodes)*2)
		for _, ref := range way.Nodes {
			node, err := d.store.GetNode(ctx, ref)
			if err != nil {
				return nil, false, err
			}
			if node == nil {
				coords = nil
				break
			}
			coords = append(coords, middle.UnscaleCoord(node.Lon), middle.UnscaleCoord(node.Lat))
		}
		if len(coords) < 4 {
			continue
		}
		memberWays = append(memberWays, geombuild.Member{WayID: way.ID, Refs: way.Nodes, Coords: coords, Role: m.Role})
	}

	if len(memberWays) == 0 {
		return nil, false, nil
	}

	return &evaluator.Object{
		ID:         rel.ID,
		Type:       "relation",
		Version:    int(rel.Version),
		Changeset:  rel.Changeset,
		Tags:       rel.Tags,
		Members:    members,
		MemberWays: memberWays,
	}, true, nil
}

func memberType(t string) string {
	switch t {
	case "n":
		return "node"
	case "w":
		return "way"
	case "r":
		return "relation"
	default:
		return t
	}
}
