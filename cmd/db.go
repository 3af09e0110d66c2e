package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flexosm/flex2pg/internal/config"
)

// openPool opens a connection pool sized for a run's worker count, mirroring
// the teacher's streaming loader: enough connections for the sink's table
// buffers plus headroom for schema/index DDL.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	minConns := cfg.Workers
	if minConns < 4 {
		minConns = 4
	}
	poolConfig.MaxConns = int32(minConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgresql: %w", err)
	}

	if err := ensureSchema(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// ensureSchema creates the PostGIS extension and destination schema ahead
// of the run so CreateTables never has to deal with a missing namespace.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("creating postgis extension: %w", err)
	}

	if cfg.DBSchema != "" && cfg.DBSchema != "public" {
		if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", cfg.DBSchema)); err != nil {
			return fmt.Errorf("creating schema %s: %w", cfg.DBSchema, err)
		}
	}

	return nil
}
