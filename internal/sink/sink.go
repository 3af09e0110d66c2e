package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/schema"
)

const stagingSuffix = "_tmp_flex2pg"

// Sink is the per-table staging buffer that turns emitted rows into bulk
// COPY loads. Import mode loads into shadow tables and swaps them into
// place atomically once indexes and clustering are done; update mode
// writes directly into the live tables with DELETE-then-INSERT per batch,
// mirroring the teacher's batchBuffer/flushBuffer split but extended with
// the staging-table commit protocol.
type Sink struct {
	cfg        *config.Config
	pool       *pgxpool.Pool
	registry   *schema.Registry
	importMode bool
	watermark  int64

	buffers map[string]*tableBuffer

	rowsInserted atomic.Int64
	rowsDeleted  atomic.Int64
	flushes      atomic.Int64
}

type tableBuffer struct {
	table       *schema.Table
	columns     []string
	rows        [][]interface{}
	approxBytes int64
	mu          sync.Mutex
}

// NewSink creates a sink bound to the given table registry.
// cfg.WatermarkBytes is the approximate per-table staging buffer size that
// triggers a flush.
func NewSink(cfg *config.Config, pool *pgxpool.Pool, registry *schema.Registry, importMode bool) *Sink {
	s := &Sink{
		cfg:        cfg,
		pool:       pool,
		registry:   registry,
		importMode: importMode,
		watermark:  cfg.WatermarkBytes,
		buffers:    make(map[string]*tableBuffer),
	}

	for _, t := range registry.All() {
		columns := make([]string, 0, len(t.Columns)+1)
		if t.IDColumn != nil {
			columns = append(columns, t.IDColumn.Column)
			if t.IDColumn.TypeColumn != "" {
				columns = append(columns, t.IDColumn.TypeColumn)
			}
		}
		for _, col := range t.Columns {
			if col.CreateOnly {
				continue
			}
			columns = append(columns, col.Name)
		}
		s.buffers[t.Name] = &tableBuffer{table: t, columns: columns, rows: make([][]interface{}, 0, 1024)}
	}

	return s
}

func (s *Sink) stagingName(table *schema.Table) string {
	if s.importMode {
		return table.Name + stagingSuffix
	}
	return table.Name
}

// CreateTables creates (or drops and recreates) the backing tables. During
// import these are shadow tables named <table>_tmp_flex2pg; CommitImport
// swaps them into place. During update the live tables are created
// directly, with CREATE TABLE IF NOT EXISTS so a re-run is idempotent.
func (s *Sink) CreateTables(ctx context.Context, dropExisting bool) error {
	log := logger.Get()

	for _, t := range s.registry.All() {
		name := s.stagingName(t)
		full := fmt.Sprintf("%s.%q", t.Schema, name)

		if dropExisting {
			if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", full)); err != nil {
				return fmt.Errorf("dropping table %s: %w", full, err)
			}
		}

		sql := s.buildCreateTableSQL(t, name)
		log.Debug("creating output table", zap.String("table", full))
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("creating table %s: %w", full, err)
		}
	}

	return nil
}

func (s *Sink) buildCreateTableSQL(t *schema.Table, name string) string {
	full := fmt.Sprintf("%s.%q", t.Schema, name)
	var cols []string

	if t.IDColumn != nil {
		cols = append(cols, fmt.Sprintf("%q BIGINT", t.IDColumn.Column))
		if t.IDColumn.TypeColumn != "" {
			cols = append(cols, fmt.Sprintf("%q TEXT", t.IDColumn.TypeColumn))
		}
	}

	for _, col := range t.Columns {
		if col.CreateOnly {
			continue
		}
		def := fmt.Sprintf("%q %s", col.Name, col.SQLTypeName())
		if col.NotNull {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", full, strings.Join(cols, ",\n  "))

	if t.DataTablespace != "" {
		sql += fmt.Sprintf(" TABLESPACE %s", t.DataTablespace)
	}

	return sql
}

// Insert buffers a row for its destination table, flushing if the buffer
// has crossed the watermark.
func (s *Sink) Insert(ctx context.Context, row evaluator.Row) error {
	buf, ok := s.buffers[row.Table]
	if !ok {
		return fmt.Errorf("sink: unknown table %q", row.Table)
	}

	values := make([]interface{}, len(buf.columns))
	approx := int64(0)
	for i, col := range buf.columns {
		switch {
		case buf.table.IDColumn != nil && col == buf.table.IDColumn.Column:
			values[i] = row.Values[col]
		case buf.table.IDColumn != nil && col == buf.table.IDColumn.TypeColumn:
			values[i] = row.Values[col]
		case buf.table.GeometryColumn() != nil && col == buf.table.GeometryColumn().Name:
			values[i] = row.GeomWKB
			approx += int64(len(row.GeomWKB))
		default:
			v := row.Values[col]
			values[i] = v
			approx += estimateSize(v)
		}
	}

	buf.mu.Lock()
	buf.rows = append(buf.rows, values)
	buf.approxBytes += approx
	shouldFlush := buf.approxBytes >= s.watermark
	buf.mu.Unlock()

	if shouldFlush {
		return s.Flush(ctx, row.Table)
	}
	return nil
}

func estimateSize(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		return int64(len(t)) + 8
	case []byte:
		return int64(len(t)) + 8
	default:
		return 16
	}
}

// Flush COPYs a table's buffered rows into its staging/live table.
func (s *Sink) Flush(ctx context.Context, tableName string) error {
	buf, ok := s.buffers[tableName]
	if !ok {
		return fmt.Errorf("sink: unknown table %q", tableName)
	}

	buf.mu.Lock()
	rows := buf.rows
	buf.rows = make([][]interface{}, 0, 1024)
	buf.approxBytes = 0
	buf.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	name := s.stagingName(buf.table)
	count, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{buf.table.Schema, name},
		buf.columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("COPY into %s.%s failed: %w", buf.table.Schema, name, err)
	}

	s.rowsInserted.Add(count)
	s.flushes.Add(1)
	return nil
}

// FlushAll flushes every table's buffer.
func (s *Sink) FlushAll(ctx context.Context) error {
	for name := range s.buffers {
		if err := s.Flush(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRows removes rows for the given primitive ids from a table during
// an update, ahead of re-inserting whatever the evaluator produces this
// round. Used directly by the dispatcher's Apply/Propagate state.
func (s *Sink) DeleteRows(ctx context.Context, tableName string, ids []int64, idType string) error {
	buf, ok := s.buffers[tableName]
	if !ok || buf.table.IDColumn == nil || len(ids) == 0 {
		return nil
	}

	name := s.stagingName(buf.table)
	full := fmt.Sprintf("%s.%q", buf.table.Schema, name)

	if buf.table.IDColumn.TypeColumn != "" && idType != "" {
		_, err := s.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %q = ANY($1) AND %q = $2", full, buf.table.IDColumn.Column, buf.table.IDColumn.TypeColumn),
			ids, idType,
		)
		if err != nil {
			return fmt.Errorf("deleting from %s: %w", full, err)
		}
	} else {
		_, err := s.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %q = ANY($1)", full, buf.table.IDColumn.Column),
			ids,
		)
		if err != nil {
			return fmt.Errorf("deleting from %s: %w", full, err)
		}
	}

	s.rowsDeleted.Add(int64(len(ids)))
	return nil
}

// Stats reports row-level sink counters.
type Stats struct {
	RowsInserted int64
	RowsDeleted  int64
	Flushes      int64
}

func (s *Sink) Stats() Stats {
	return Stats{
		RowsInserted: s.rowsInserted.Load(),
		RowsDeleted:  s.rowsDeleted.Load(),
		Flushes:      s.flushes.Load(),
	}
}
