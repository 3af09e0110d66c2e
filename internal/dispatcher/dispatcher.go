// Package dispatcher drives the two state machines that turn an OSM
// primitive stream into rows in the output tables: Import
// (Start -> NodesPhase -> WaysPhase -> RelationsPhase -> Stop) for a full
// load, and Update (Start -> Apply -> Propagate -> Stop) for applying a
// changefile against an existing slim database.
package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/expire"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/schema"
	"github.com/flexosm/flex2pg/internal/sink"
)

// Dispatcher wires the middle store, the evaluator and the sink together
// and drives them through either state machine.
type Dispatcher struct {
	cfg    *config.Config
	eval   evaluator.Evaluator
	sink   *sink.Sink
	store  *middle.MiddleStore
	expire *expire.Tracker

	nodesProcessed     atomic.Int64
	waysProcessed       atomic.Int64
	relationsProcessed atomic.Int64
	rowsRebuilt        atomic.Int64
	rowsDropped        atomic.Int64
}

// New creates a dispatcher. store may be nil for an import run with slim
// mode off, since then no incremental update will ever be applied against
// this run's output and the middle tables are never populated. A tile
// expiry tracker is built automatically when cfg.ExpireOutput is set.
func New(cfg *config.Config, eval evaluator.Evaluator, snk *sink.Sink, store *middle.MiddleStore) *Dispatcher {
	d := &Dispatcher{cfg: cfg, eval: eval, sink: snk, store: store}
	if cfg != nil && cfg.ExpireOutput != "" {
		d.expire = expire.NewTracker(cfg.ExpireMinZoom, cfg.ExpireMaxZoom)
	}
	return d
}

// Stats summarizes a dispatcher run.
type Stats struct {
	NodesProcessed     int64
	WaysProcessed      int64
	RelationsProcessed int64
	RowsRebuilt        int64
	RowsDropped        int64
	ExpiredTiles       int
}

func (d *Dispatcher) Stats() Stats {
	stats := Stats{
		NodesProcessed:     d.nodesProcessed.Load(),
		WaysProcessed:      d.waysProcessed.Load(),
		RelationsProcessed: d.relationsProcessed.Load(),
		RowsRebuilt:        d.rowsRebuilt.Load(),
		RowsDropped:        d.rowsDropped.Load(),
	}
	if d.expire != nil {
		stats.ExpiredTiles = d.expire.Count()
	}
	return stats
}

// emit runs a single object through the evaluator and buffers whatever
// rows it produces into the sink.
func (d *Dispatcher) emit(ctx context.Context, obj *evaluator.Object) error {
	var rows []evaluator.Row
	var err error

	switch obj.Type {
	case "node":
		if !d.eval.HasProcessNode() {
			return nil
		}
		rows, err = d.eval.ProcessNode(obj)
	case "way":
		if !d.eval.HasProcessWay() {
			return nil
		}
		rows, err = d.eval.ProcessWay(obj)
	case "relation":
		if !d.eval.HasProcessRelation() {
			return nil
		}
		rows, err = d.eval.ProcessRelation(obj)
	default:
		return fmt.Errorf("dispatcher: unknown object type %q", obj.Type)
	}

	if err != nil {
		return fmt.Errorf("evaluating %s %d: %w", obj.Type, obj.ID, err)
	}

	for _, row := range rows {
		if err := d.sink.Insert(ctx, row); err != nil {
			return fmt.Errorf("inserting row for %s %d into %s: %w", obj.Type, obj.ID, row.Table, err)
		}
	}

	d.markExpired(obj)
	return nil
}

// markExpired feeds an object's footprint into the tile expiry tracker, a
// no-op when no --expire-output was requested.
func (d *Dispatcher) markExpired(obj *evaluator.Object) {
	if d.expire == nil {
		return
	}
	switch obj.Type {
	case "node":
		d.expire.ExpirePoint(obj.Lat, obj.Lon)
	case "way":
		d.expire.ExpireCoords(obj.Coords)
	case "relation":
		for _, member := range obj.MemberWays {
			d.expire.ExpireCoords(member.Coords)
		}
	}
}

// writeExpiredTiles flushes the tracker to cfg.ExpireOutput, a no-op when
// expiry tracking wasn't requested. An update run appends so a long-running
// replication loop accumulates every sequence's expired tiles instead of
// overwriting the file on each diff; an import run overwrites, since it
// starts the expire file fresh.
func (d *Dispatcher) writeExpiredTiles() error {
	if d.expire == nil {
		return nil
	}
	if d.cfg.Mode == config.ModeUpdate {
		return d.expire.AppendToFile(d.cfg.ExpireOutput)
	}
	return d.expire.WriteToFile(d.cfg.ExpireOutput)
}

// kindForObjectType maps a primitive's stream type to the id-column kind a
// table declares for it.
func kindForObjectType(objType string) schema.IDColumnKind {
	switch objType {
	case "node":
		return schema.IDKindNode
	case "way":
		return schema.IDKindWay
	case "relation":
		return schema.IDKindRelation
	}
	return schema.IDKindAny
}

// tableMatchesKind reports whether a table's id-column policy covers a
// primitive of the given type, and if so which osm_type value to filter on.
func tableMatchesKind(idc *schema.IDColumn, objType string) (matches bool, idType string) {
	switch idc.Kind {
	case kindForObjectType(objType):
		return true, objType
	case schema.IDKindAny:
		return true, objType
	case schema.IDKindArea:
		if objType == "way" || objType == "relation" {
			return true, objType
		}
	}
	return false, ""
}

// deleteRowsFor removes every row the given primitive could have produced
// across all registered tables, ahead of re-rendering it or tombstoning it.
func (d *Dispatcher) deleteRowsFor(ctx context.Context, objType string, id int64) error {
	for _, t := range d.eval.Tables().All() {
		if t.IDColumn == nil {
			continue
		}
		matches, idType := tableMatchesKind(t.IDColumn, objType)
		if !matches {
			continue
		}
		if err := d.sink.DeleteRows(ctx, t.Name, []int64{id}, idType); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) logProgress(msg string) {
	stats := d.Stats()
	logger.Get().Info(msg,
		zap.Int64("nodes", stats.NodesProcessed),
		zap.Int64("ways", stats.WaysProcessed),
		zap.Int64("relations", stats.RelationsProcessed),
		zap.Int64("rows_rebuilt", stats.RowsRebuilt),
		zap.Int64("rows_dropped", stats.RowsDropped),
	)
}
