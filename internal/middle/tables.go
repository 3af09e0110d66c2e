package middle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/logger"
)

// MiddleStore manages the "middle tables" that store raw OSM data.
// These tables enable incremental updates by tracking dependencies between
// nodes, ways and relations. Deleted primitives are retained as tombstones
// (deleted = true) rather than hard-deleted, so that a way or relation that
// still references them can be found and re-rendered during propagation.
type MiddleStore struct {
	cfg  *config.Config
	pool *pgxpool.Pool

	// Statistics
	NodesInserted     atomic.Int64
	WaysInserted      atomic.Int64
	RelationsInserted atomic.Int64
}

// NewMiddleStore creates a new middle table store
func NewMiddleStore(cfg *config.Config, pool *pgxpool.Pool) *MiddleStore {
	return &MiddleStore{
		cfg:  cfg,
		pool: pool,
	}
}

// EnsureTables creates the middle tables if they don't exist
func (m *MiddleStore) EnsureTables(ctx context.Context, dropExisting bool) error {
	log := logger.Get()

	tables := []struct {
		name   string
		schema string
	}{
		{
			name: "planet_osm_nodes",
			schema: `
				CREATE UNLOGGED TABLE IF NOT EXISTS %s.planet_osm_nodes (
					id BIGINT PRIMARY KEY,
					lat INTEGER NOT NULL,
					lon INTEGER NOT NULL,
					tags JSONB,
					version INTEGER,
					changeset BIGINT,
					deleted BOOLEAN NOT NULL DEFAULT false
				)%s`,
		},
		{
			name: "planet_osm_ways",
			schema: `
				CREATE UNLOGGED TABLE IF NOT EXISTS %s.planet_osm_ways (
					id BIGINT PRIMARY KEY,
					nodes BIGINT[] NOT NULL,
					tags JSONB,
					version INTEGER,
					changeset BIGINT,
					deleted BOOLEAN NOT NULL DEFAULT false
				)%s`,
		},
		{
			name: "planet_osm_rels",
			schema: `
				CREATE UNLOGGED TABLE IF NOT EXISTS %s.planet_osm_rels (
					id BIGINT PRIMARY KEY,
					members JSONB NOT NULL,
					tags JSONB,
					version INTEGER,
					changeset BIGINT,
					deleted BOOLEAN NOT NULL DEFAULT false
				)%s`,
		},
	}

	// Build tablespace clause
	tablespaceClause := ""
	if m.cfg.TablespaceMain != "" {
		tablespaceClause = fmt.Sprintf(" TABLESPACE %s", m.cfg.TablespaceMain)
	}

	for _, t := range tables {
		fullName := fmt.Sprintf("%s.%s", m.cfg.DBSchema, t.name)

		if dropExisting {
			log.Info("Dropping middle table", zap.String("table", t.name))
			if _, err := m.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", fullName)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", t.name, err)
			}
		}

		log.Info("Creating middle table", zap.String("table", t.name))
		sql := fmt.Sprintf(t.schema, m.cfg.DBSchema, tablespaceClause)
		if _, err := m.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}

	return nil
}

// LoadNodes bulk inserts nodes from a channel into planet_osm_nodes.
// In slim mode the import's middle mirror feeds it every node, alongside
// the mmap-backed nodeindex that way assembly reads coordinates from.
func (m *MiddleStore) LoadNodes(ctx context.Context, nodes <-chan RawNode) (int64, error) {
	log := logger.Get()
	log.Info("Starting middle table node load")

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// Convert channel to row source
	rowChan := make(chan []interface{}, 10000)
	go func() {
		defer close(rowChan)
		for node := range nodes {
			var tagsJSON []byte
			if len(node.Tags) > 0 {
				tagsJSON, _ = json.Marshal(node.Tags)
			}

			row := []interface{}{node.ID, node.Lat, node.Lon, tagsJSON, node.Version, node.Changeset, node.Deleted}
			select {
			case rowChan <- row:
				m.NodesInserted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	count, err := conn.Conn().CopyFrom(
		ctx,
		pgx.Identifier{m.cfg.DBSchema, "planet_osm_nodes"},
		[]string{"id", "lat", "lon", "tags", "version", "changeset", "deleted"},
		&rowSource{rows: rowChan},
	)
	if err != nil {
		return 0, fmt.Errorf("COPY to planet_osm_nodes failed: %w", err)
	}

	// Convert to logged table
	fullName := fmt.Sprintf("%s.planet_osm_nodes", m.cfg.DBSchema)
	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", fullName)); err != nil {
		// Ignore error
	}

	log.Info("Middle table node load complete", zap.Int64("rows", count))
	return count, nil
}

// LoadWays bulk inserts ways from a channel into planet_osm_ways
func (m *MiddleStore) LoadWays(ctx context.Context, ways <-chan RawWay) (int64, error) {
	log := logger.Get()
	log.Info("Starting middle table way load")

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rowChan := make(chan []interface{}, 10000)
	go func() {
		defer close(rowChan)
		for way := range ways {
			var tagsJSON []byte
			if len(way.Tags) > 0 {
				tagsJSON, _ = json.Marshal(way.Tags)
			}

			row := []interface{}{way.ID, way.Nodes, tagsJSON, way.Version, way.Changeset, way.Deleted}
			select {
			case rowChan <- row:
				m.WaysInserted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	count, err := conn.Conn().CopyFrom(
		ctx,
		pgx.Identifier{m.cfg.DBSchema, "planet_osm_ways"},
		[]string{"id", "nodes", "tags", "version", "changeset", "deleted"},
		&rowSource{rows: rowChan},
	)
	if err != nil {
		return 0, fmt.Errorf("COPY to planet_osm_ways failed: %w", err)
	}

	// Convert to logged table
	fullName := fmt.Sprintf("%s.planet_osm_ways", m.cfg.DBSchema)
	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", fullName)); err != nil {
		// Ignore error
	}

	log.Info("Middle table way load complete", zap.Int64("rows", count))
	return count, nil
}

// LoadRelations bulk inserts relations from a channel into planet_osm_rels
func (m *MiddleStore) LoadRelations(ctx context.Context, relations <-chan RawRelation) (int64, error) {
	log := logger.Get()
	log.Info("Starting middle table relation load")

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rowChan := make(chan []interface{}, 10000)
	go func() {
		defer close(rowChan)
		for rel := range relations {
			membersJSON, _ := json.Marshal(rel.Members)
			var tagsJSON []byte
			if len(rel.Tags) > 0 {
				tagsJSON, _ = json.Marshal(rel.Tags)
			}

			row := []interface{}{rel.ID, membersJSON, tagsJSON, rel.Version, rel.Changeset, rel.Deleted}
			select {
			case rowChan <- row:
				m.RelationsInserted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	count, err := conn.Conn().CopyFrom(
		ctx,
		pgx.Identifier{m.cfg.DBSchema, "planet_osm_rels"},
		[]string{"id", "members", "tags", "version", "changeset", "deleted"},
		&rowSource{rows: rowChan},
	)
	if err != nil {
		return 0, fmt.Errorf("COPY to planet_osm_rels failed: %w", err)
	}

	// Convert to logged table
	fullName := fmt.Sprintf("%s.planet_osm_rels", m.cfg.DBSchema)
	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", fullName)); err != nil {
		// Ignore error
	}

	log.Info("Middle table relation load complete", zap.Int64("rows", count))
	return count, nil
}

// CreateIndexes creates indexes on middle tables for dependency lookups
func (m *MiddleStore) CreateIndexes(ctx context.Context) error {
	log := logger.Get()
	log.Info("Creating middle table indexes")

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// Set high maintenance_work_mem
	if _, err := conn.Exec(ctx, "SET maintenance_work_mem = '2GB'"); err != nil {
		// Ignore
	}

	// Build tablespace clause
	tablespaceClause := ""
	if m.cfg.TablespaceIndex != "" {
		tablespaceClause = fmt.Sprintf(" TABLESPACE %s", m.cfg.TablespaceIndex)
	}

	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: "planet_osm_ways_nodes_idx",
			sql: fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS planet_osm_ways_nodes_idx ON %s.planet_osm_ways USING GIN (nodes)%s",
				m.cfg.DBSchema, tablespaceClause),
		},
		{
			name: "planet_osm_rels_members_idx",
			sql: fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS planet_osm_rels_members_idx ON %s.planet_osm_rels USING GIN (members)%s",
				m.cfg.DBSchema, tablespaceClause),
		},
	}

	for _, idx := range indexes {
		log.Info("Creating index", zap.String("name", idx.name))
		if _, err := conn.Exec(ctx, idx.sql); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	// Analyze tables
	for _, table := range []string{"planet_osm_nodes", "planet_osm_ways", "planet_osm_rels"} {
		fullName := fmt.Sprintf("%s.%s", m.cfg.DBSchema, table)
		if _, err := conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", fullName)); err != nil {
			return fmt.Errorf("failed to analyze %s: %w", table, err)
		}
	}

	log.Info("Middle table indexes created")
	return nil
}

// GetNode retrieves a node by ID. It returns (nil, nil) both when the node
// was never seen and when it exists only as a tombstone (deleted = true):
// both cases are "missing" to callers that want current geometry. Callers
// that need to find dependents of a deleted node should use WaysUsingNode /
// RelationsUsingNode, which look at the referencing rows directly and do
// not depend on the node row surviving.
func (m *MiddleStore) GetNode(ctx context.Context, id int64) (*RawNode, error) {
	node, err := m.getNodeRaw(ctx, id)
	if err != nil || node == nil || node.Deleted {
		return nil, err
	}
	return node, nil
}

// getNodeRaw retrieves a node row regardless of tombstone status.
func (m *MiddleStore) getNodeRaw(ctx context.Context, id int64) (*RawNode, error) {
	var node RawNode
	var tagsJSON []byte

	err := m.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT id, lat, lon, tags, version, changeset, deleted FROM %s.planet_osm_nodes WHERE id = $1", m.cfg.DBSchema),
		id,
	).Scan(&node.ID, &node.Lat, &node.Lon, &tagsJSON, &node.Version, &node.Changeset, &node.Deleted)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		json.Unmarshal(tagsJSON, &node.Tags)
	}

	return &node, nil
}

// GetWay retrieves a way by ID, reporting missing for both "never seen"
// and tombstoned ways.
func (m *MiddleStore) GetWay(ctx context.Context, id int64) (*RawWay, error) {
	way, err := m.getWayRaw(ctx, id)
	if err != nil || way == nil || way.Deleted {
		return nil, err
	}
	return way, nil
}

func (m *MiddleStore) getWayRaw(ctx context.Context, id int64) (*RawWay, error) {
	var way RawWay
	var tagsJSON []byte

	err := m.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT id, nodes, tags, version, changeset, deleted FROM %s.planet_osm_ways WHERE id = $1", m.cfg.DBSchema),
		id,
	).Scan(&way.ID, &way.Nodes, &tagsJSON, &way.Version, &way.Changeset, &way.Deleted)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		json.Unmarshal(tagsJSON, &way.Tags)
	}

	return &way, nil
}

// WaysUsingNode finds all ways (including those that are themselves
// tombstoned, since a tombstoned way can still need to be re-rendered as
// "gone" once its last dependency disappears) that reference a given node.
func (m *MiddleStore) WaysUsingNode(ctx context.Context, nodeID int64) ([]int64, error) {
	rows, err := m.pool.Query(ctx,
		fmt.Sprintf("SELECT id FROM %s.planet_osm_ways WHERE nodes @> ARRAY[$1]::bigint[]", m.cfg.DBSchema),
		nodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wayIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		wayIDs = append(wayIDs, id)
	}

	return wayIDs, rows.Err()
}

// GetWaysForNode is a backward-compatible alias for WaysUsingNode.
func (m *MiddleStore) GetWaysForNode(ctx context.Context, nodeID int64) ([]int64, error) {
	return m.WaysUsingNode(ctx, nodeID)
}

// RelationsUsingMember finds all relations that contain a given member.
func (m *MiddleStore) RelationsUsingMember(ctx context.Context, memberType string, memberRef int64) ([]int64, error) {
	rows, err := m.pool.Query(ctx,
		fmt.Sprintf(`
			SELECT id FROM %s.planet_osm_rels
			WHERE members @> '[{"Type": %q, "Ref": %d}]'::jsonb
		`, m.cfg.DBSchema, memberType, memberRef),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		relIDs = append(relIDs, id)
	}

	return relIDs, rows.Err()
}

// GetRelationsForMember is a backward-compatible alias for RelationsUsingMember.
func (m *MiddleStore) GetRelationsForMember(ctx context.Context, memberType string, memberRef int64) ([]int64, error) {
	return m.RelationsUsingMember(ctx, memberType, memberRef)
}

// RelationsUsingNode finds relations that directly reference a node.
func (m *MiddleStore) RelationsUsingNode(ctx context.Context, nodeID int64) ([]int64, error) {
	return m.RelationsUsingMember(ctx, "n", nodeID)
}

// RelationsUsingWay finds relations that directly reference a way.
func (m *MiddleStore) RelationsUsingWay(ctx context.Context, wayID int64) ([]int64, error) {
	return m.RelationsUsingMember(ctx, "w", wayID)
}

// RelationsUsingRelation finds super-relations that directly reference a
// relation, so a changed or rebuilt sub-relation propagates up to the
// relations containing it, not just to its own row.
func (m *MiddleStore) RelationsUsingRelation(ctx context.Context, relID int64) ([]int64, error) {
	return m.RelationsUsingMember(ctx, "r", relID)
}

// GetRelation retrieves a relation by ID, reporting missing for both
// "never seen" and tombstoned relations.
func (m *MiddleStore) GetRelation(ctx context.Context, id int64) (*RawRelation, error) {
	rel, err := m.getRelationRaw(ctx, id)
	if err != nil || rel == nil || rel.Deleted {
		return nil, err
	}
	return rel, nil
}

func (m *MiddleStore) getRelationRaw(ctx context.Context, id int64) (*RawRelation, error) {
	var rel RawRelation
	var membersJSON, tagsJSON []byte

	err := m.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT id, members, tags, version, changeset, deleted FROM %s.planet_osm_rels WHERE id = $1", m.cfg.DBSchema),
		id,
	).Scan(&rel.ID, &membersJSON, &tagsJSON, &rel.Version, &rel.Changeset, &rel.Deleted)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal(membersJSON, &rel.Members)
	if len(tagsJSON) > 0 {
		json.Unmarshal(tagsJSON, &rel.Tags)
	}

	return &rel, nil
}

// UpdateNode updates or inserts a node, clearing any prior tombstone.
func (m *MiddleStore) UpdateNode(ctx context.Context, node *RawNode) error {
	var tagsJSON []byte
	if len(node.Tags) > 0 {
		tagsJSON, _ = json.Marshal(node.Tags)
	}

	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_nodes (id, lat, lon, tags, version, changeset, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, false)
			ON CONFLICT (id) DO UPDATE SET lat = $2, lon = $3, tags = $4, version = $5, changeset = $6, deleted = false
		`, m.cfg.DBSchema),
		node.ID, node.Lat, node.Lon, tagsJSON, node.Version, node.Changeset,
	)
	return err
}

// UpdateWay updates or inserts a way, clearing any prior tombstone.
func (m *MiddleStore) UpdateWay(ctx context.Context, way *RawWay) error {
	var tagsJSON []byte
	if len(way.Tags) > 0 {
		tagsJSON, _ = json.Marshal(way.Tags)
	}

	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_ways (id, nodes, tags, version, changeset, deleted)
			VALUES ($1, $2, $3, $4, $5, false)
			ON CONFLICT (id) DO UPDATE SET nodes = $2, tags = $3, version = $4, changeset = $5, deleted = false
		`, m.cfg.DBSchema),
		way.ID, way.Nodes, tagsJSON, way.Version, way.Changeset,
	)
	return err
}

// UpdateRelation updates or inserts a relation, clearing any prior tombstone.
func (m *MiddleStore) UpdateRelation(ctx context.Context, rel *RawRelation) error {
	membersJSON, _ := json.Marshal(rel.Members)
	var tagsJSON []byte
	if len(rel.Tags) > 0 {
		tagsJSON, _ = json.Marshal(rel.Tags)
	}

	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_rels (id, members, tags, version, changeset, deleted)
			VALUES ($1, $2, $3, $4, $5, false)
			ON CONFLICT (id) DO UPDATE SET members = $2, tags = $3, version = $4, changeset = $5, deleted = false
		`, m.cfg.DBSchema),
		rel.ID, membersJSON, tagsJSON, rel.Version, rel.Changeset,
	)
	return err
}

// DeleteNode marks a node as a tombstone rather than removing its row, so
// that ways which still reference it can be looked up via WaysUsingNode
// until they are themselves updated or deleted.
func (m *MiddleStore) DeleteNode(ctx context.Context, id int64) error {
	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_nodes (id, lat, lon, deleted)
			VALUES ($1, 0, 0, true)
			ON CONFLICT (id) DO UPDATE SET deleted = true
		`, m.cfg.DBSchema),
		id,
	)
	return err
}

// DeleteWay marks a way as a tombstone rather than removing its row.
func (m *MiddleStore) DeleteWay(ctx context.Context, id int64) error {
	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_ways (id, nodes, deleted)
			VALUES ($1, ARRAY[]::bigint[], true)
			ON CONFLICT (id) DO UPDATE SET deleted = true
		`, m.cfg.DBSchema),
		id,
	)
	return err
}

// DeleteRelation marks a relation as a tombstone rather than removing its row.
func (m *MiddleStore) DeleteRelation(ctx context.Context, id int64) error {
	_, err := m.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %s.planet_osm_rels (id, members, deleted)
			VALUES ($1, '[]'::jsonb, true)
			ON CONFLICT (id) DO UPDATE SET deleted = true
		`, m.cfg.DBSchema),
		id,
	)
	return err
}

// PurgeTombstones hard-deletes rows that have been marked deleted, for
// callers that periodically compact the middle tables once no pending
// propagation can still need the tombstone's reverse-index entry.
func (m *MiddleStore) PurgeTombstones(ctx context.Context) error {
	for _, table := range []string{"planet_osm_nodes", "planet_osm_ways", "planet_osm_rels"} {
		fullName := fmt.Sprintf("%s.%s", m.cfg.DBSchema, table)
		if _, err := m.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE deleted", fullName)); err != nil {
			return fmt.Errorf("failed to purge tombstones from %s: %w", table, err)
		}
	}
	return nil
}

// DropTables drops all middle tables
func (m *MiddleStore) DropTables(ctx context.Context) error {
	log := logger.Get()
	log.Info("Dropping middle tables")

	for _, table := range []string{"planet_osm_nodes", "planet_osm_ways", "planet_osm_rels"} {
		fullName := fmt.Sprintf("%s.%s", m.cfg.DBSchema, table)
		if _, err := m.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", fullName)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	return nil
}

// rowSource implements pgx.CopyFromSource for streaming rows from a channel
type rowSource struct {
	rows    <-chan []interface{}
	current []interface{}
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]interface{}, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
