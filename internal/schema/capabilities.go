package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Capabilities probes the live database for objects a table definition may
// reference (schemas, tablespaces) before any data flows, so a missing
// tablespace surfaces as a configuration error instead of a COPY failure
// partway through a run.
type Capabilities struct {
	pool *pgxpool.Pool
}

// NewCapabilities wraps a pool for schema/tablespace existence checks.
func NewCapabilities(pool *pgxpool.Pool) *Capabilities {
	return &Capabilities{pool: pool}
}

func (c *Capabilities) schemaExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_namespace WHERE nspname = $1)`, name).Scan(&exists)
	return exists, err
}

func (c *Capabilities) tablespaceExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_tablespace WHERE spcname = $1)`, name).Scan(&exists)
	return exists, err
}

// Probe checks every schema and tablespace referenced by the registry's
// tables and returns a single error naming the first missing object plus
// the SQL that would create it, or nil if everything referenced exists.
func (c *Capabilities) Probe(ctx context.Context, r *Registry) error {
	checkedSchemas := make(map[string]bool)
	checkedTablespaces := make(map[string]bool)

	for _, t := range r.All() {
		if t.Schema != "" && !checkedSchemas[t.Schema] {
			checkedSchemas[t.Schema] = true
			ok, err := c.schemaExists(ctx, t.Schema)
			if err != nil {
				return fmt.Errorf("checking schema %q: %w", t.Schema, err)
			}
			if !ok {
				return fmt.Errorf("schema %q does not exist; create it first with: CREATE SCHEMA %s", t.Schema, t.Schema)
			}
		}
		for _, ts := range []string{t.DataTablespace, t.IndexTablespace} {
			if ts == "" || checkedTablespaces[ts] {
				continue
			}
			checkedTablespaces[ts] = true
			ok, err := c.tablespaceExists(ctx, ts)
			if err != nil {
				return fmt.Errorf("checking tablespace %q: %w", ts, err)
			}
			if !ok {
				return fmt.Errorf("tablespace %q does not exist; create it first with: CREATE TABLESPACE %s LOCATION '...'", ts, ts)
			}
		}
	}
	return nil
}
