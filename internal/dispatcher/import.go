package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/osmreader"
)

// RunImport drives the Import state machine: Start creates the shadow
// output tables (and, in slim mode, the middle tables); NodesPhase/
// WaysPhase/RelationsPhase run as a single pass over the reader's object
// stream, since the reader itself interleaves all three once pass one's
// node index is built; Stop commits the shadow tables into place.
func (d *Dispatcher) RunImport(ctx context.Context, reader *osmreader.PBFReader) error {
	log := logger.Named("import")
	log.Info("start")

	if err := d.sink.CreateTables(ctx, true); err != nil {
		return fmt.Errorf("creating output tables: %w", err)
	}

	mirror, err := d.startMiddleMirror(ctx)
	if err != nil {
		return err
	}

	streams, err := reader.Run(ctx)
	if err != nil {
		return fmt.Errorf("starting PBF read: %w", err)
	}

	log.Info("nodes/ways/relations phase")
readLoop:
	for {
		select {
		case obj, ok := <-streams.Objects:
			if !ok {
				break readLoop
			}
			if err := d.emit(ctx, obj); err != nil {
				mirror.closeAndWait()
				return err
			}
			mirror.send(obj)
			switch obj.Type {
			case "node":
				d.nodesProcessed.Add(1)
			case "way":
				d.waysProcessed.Add(1)
			case "relation":
				d.relationsProcessed.Add(1)
			}
		case err, ok := <-streams.Errors:
			if ok && err != nil {
				mirror.closeAndWait()
				return fmt.Errorf("reading PBF: %w", err)
			}
		case <-ctx.Done():
			mirror.closeAndWait()
			return ctx.Err()
		}
	}

	mirror.closeAndWait()
	if err := mirror.err(); err != nil {
		return fmt.Errorf("loading middle tables: %w", err)
	}

	if dropped := reader.Stats().WaysDropped; dropped > 0 {
		d.rowsDropped.Add(dropped)
		log.Warn("ways skipped for unresolved node references", zap.Int64("count", dropped))
	}

	log.Info("stop", zap.Int64("nodes", d.nodesProcessed.Load()),
		zap.Int64("ways", d.waysProcessed.Load()), zap.Int64("relations", d.relationsProcessed.Load()))

	if d.cfg.SlimMode && d.store != nil {
		if err := d.store.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("indexing middle tables: %w", err)
		}
	}

	if err := d.sink.CommitImport(ctx); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	if err := d.writeExpiredTiles(); err != nil {
		return fmt.Errorf("writing expired tiles: %w", err)
	}

	d.logProgress("import: complete")
	return nil
}

// middleMirror fans a copy of every primitive read during import into the
// middle tables' bulk loaders, so slim mode keeps a fully-indexed Postgres
// record of the run available for a later update even though the dense
// mmap node index used for way assembly during this same pass is discarded
// once the run finishes.
type middleMirror struct {
	nodeCh chan middle.RawNode
	wayCh  chan middle.RawWay
	relCh  chan middle.RawRelation
	done   chan struct{}

	loadErr error
}

func (d *Dispatcher) startMiddleMirror(ctx context.Context) (*middleMirror, error) {
	m := &middleMirror{}
	if !d.cfg.SlimMode || d.store == nil {
		return m, nil
	}

	if err := d.store.EnsureTables(ctx, true); err != nil {
		return nil, fmt.Errorf("creating middle tables: %w", err)
	}

	m.nodeCh = make(chan middle.RawNode, 10000)
	m.wayCh = make(chan middle.RawWay, 10000)
	m.relCh = make(chan middle.RawRelation, 10000)
	m.done = make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := d.store.LoadNodes(gctx, m.nodeCh)
		return err
	})
	g.Go(func() error {
		_, err := d.store.LoadWays(gctx, m.wayCh)
		return err
	})
	g.Go(func() error {
		_, err := d.store.LoadRelations(gctx, m.relCh)
		return err
	})
	go func() {
		defer close(m.done)
		m.loadErr = g.Wait()
	}()

	return m, nil
}

func (m *middleMirror) send(obj *evaluator.Object) {
	if m.done == nil {
		return
	}
	switch obj.Type {
	case "node":
		m.nodeCh <- middle.RawNode{
			ID: obj.ID, Lat: middle.ScaleCoord(obj.Lat), Lon: middle.ScaleCoord(obj.Lon),
			Tags: obj.Tags, Version: int32(obj.Version), Changeset: obj.Changeset,
		}
	case "way":
		m.wayCh <- middle.RawWay{
			ID: obj.ID, Nodes: obj.NodeRefs, Tags: obj.Tags,
			Version: int32(obj.Version), Changeset: obj.Changeset,
		}
	case "relation":
		m.relCh <- middle.RawRelation{
			ID: obj.ID, Members: membersToRaw(obj.Members), Tags: obj.Tags,
			Version: int32(obj.Version), Changeset: obj.Changeset,
		}
	}
}

func membersToRaw(members []evaluator.Member) []middle.RelationMember {
	out := make([]middle.RelationMember, len(members))
	for i, m := range members {
		out[i] = middle.RelationMember{Type: shortMemberType(m.Type), Ref: m.Ref, Role: m.Role}
	}
	return out
}

func shortMemberType(t string) string {
	switch t {
	case "node":
		return "n"
	case "way":
		return "w"
	case "relation":
		return "r"
	default:
		return t
	}
}

func (m *middleMirror) closeAndWait() {
	if m.done == nil {
		return
	}
	close(m.nodeCh)
	close(m.wayCh)
	close(m.relCh)
	<-m.done
}

// err returns the middle loaders' aggregated error. Only valid after
// closeAndWait, since the goroutine that sets loadErr happens-before the
// close of done that closeAndWait blocks on.
func (m *middleMirror) err() error {
	return m.loadErr
}
