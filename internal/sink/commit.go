package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/schema"
)

// CreateIndexes creates every index declared on a table, including the
// geometry column's GIST index, against whichever physical table
// (staging during import, live during update) is currently active.
func (s *Sink) CreateIndexes(ctx context.Context) error {
	log := logger.Get()

	for _, t := range s.registry.All() {
		name := s.stagingName(t)
		full := fmt.Sprintf("%s.%q", t.Schema, name)

		if geom := t.GeometryColumn(); geom != nil {
			idxName := fmt.Sprintf("%s_%s_idx", t.Name, geom.Name)
			sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %s USING GIST (%q)%s",
				idxName, full, geom.Name, tablespaceClause(t.IndexTablespace))
			log.Debug("creating geometry index", zap.String("index", idxName))
			if _, err := s.pool.Exec(ctx, sql); err != nil {
				return fmt.Errorf("creating index %s: %w", idxName, err)
			}
		}

		for _, idx := range t.Indexes {
			if err := s.createIndex(ctx, t, name, idx); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Sink) createIndex(ctx context.Context, t *schema.Table, physicalName string, idx schema.Index) error {
	full := fmt.Sprintf("%s.%q", t.Schema, physicalName)

	method := idx.Method
	if method == "" {
		method = "btree"
	}

	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}

	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}

	idxName := fmt.Sprintf("%s_%s_idx", t.Name, idx.Columns[0])
	sql := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %q ON %s USING %s (%s)",
		unique, idxName, full, method, joinCols(quoted))

	if idx.Where != "" {
		sql += fmt.Sprintf(" WHERE %s", idx.Where)
	}

	opts := ""
	if idx.Fillfactor > 0 {
		opts = fmt.Sprintf(" WITH (fillfactor = %d)", idx.Fillfactor)
	}
	sql += opts
	sql += tablespaceClause(t.IndexTablespace)

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating index %s: %w", idxName, err)
	}
	return nil
}

func joinCols(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

func tablespaceClause(ts string) string {
	if ts == "" {
		return ""
	}
	return fmt.Sprintf(" TABLESPACE %s", ts)
}

// ClusterTables runs CLUSTER on every table that requests it, against the
// currently-active physical table.
func (s *Sink) ClusterTables(ctx context.Context) error {
	log := logger.Get()

	for _, t := range s.registry.All() {
		if t.Cluster == "" {
			continue
		}

		var idxCol string
		if t.Cluster == "auto" {
			geom := t.GeometryColumn()
			if geom == nil {
				continue
			}
			idxCol = geom.Name
		} else {
			idxCol = t.Cluster
		}

		name := s.stagingName(t)
		full := fmt.Sprintf("%s.%q", t.Schema, name)
		idxName := fmt.Sprintf("%s_%s_idx", t.Name, idxCol)

		log.Info("clustering table", zap.String("table", full))
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("CLUSTER %s USING %q", full, idxName)); err != nil {
			return fmt.Errorf("clustering %s: %w", full, err)
		}
	}
	return nil
}

// Analyze runs ANALYZE on every table.
func (s *Sink) Analyze(ctx context.Context) error {
	for _, t := range s.registry.All() {
		name := s.stagingName(t)
		full := fmt.Sprintf("%s.%q", t.Schema, name)
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("ANALYZE %s", full)); err != nil {
			return fmt.Errorf("analyzing %s: %w", full, err)
		}
	}
	return nil
}

// CommitImport finishes an import: flush remaining buffers, build
// indexes, cluster, analyze, then atomically swap each staging table into
// place by dropping the old live table and renaming the staging table
// over it. Index names are table-scoped so the rename carries them along
// with no further action needed.
func (s *Sink) CommitImport(ctx context.Context) error {
	log := logger.Get()

	if err := s.FlushAll(ctx); err != nil {
		return err
	}
	if err := s.CreateIndexes(ctx); err != nil {
		return err
	}
	if err := s.ClusterTables(ctx); err != nil {
		return err
	}
	if err := s.Analyze(ctx); err != nil {
		return err
	}

	for _, t := range s.registry.All() {
		if !s.importMode {
			continue
		}
		staging := s.stagingName(t)
		stagingFull := fmt.Sprintf("%s.%q", t.Schema, staging)
		liveFull := fmt.Sprintf("%s.%q", t.Schema, t.Name)

		log.Info("swapping staging table into place", zap.String("table", liveFull))

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("starting commit transaction for %s: %w", t.Name, err)
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", liveFull)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("dropping old table %s: %w", liveFull, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %q", stagingFull, t.Name)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("renaming %s to %s: %w", stagingFull, t.Name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing rename for %s: %w", t.Name, err)
		}
	}

	return nil
}

// CommitUpdate finishes an update batch by flushing buffers. The live
// indexes already exist, so none are rebuilt, and no ANALYZE is run.
func (s *Sink) CommitUpdate(ctx context.Context) error {
	return s.FlushAll(ctx)
}
