// Package postgres implements the metric repository on PostgreSQL through the
// pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mesh-intelligence/fmlearn/internal/sqlstore"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
    metric_id TEXT PRIMARY KEY,
    algorithm_name TEXT NOT NULL,
    dataset_hash TEXT NOT NULL,
    metric_name TEXT NOT NULL,
    metric_value DOUBLE PRECISION NOT NULL,
    target_type TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS params (
    param_id TEXT PRIMARY KEY,
    metric_id TEXT NOT NULL REFERENCES metrics(metric_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta_features (
    feature_id TEXT PRIMARY KEY,
    metric_id TEXT NOT NULL REFERENCES metrics(metric_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_hash ON metrics(dataset_hash, metric_value);
CREATE INDEX IF NOT EXISTS idx_metrics_created ON metrics(created_at);
CREATE INDEX IF NOT EXISTS idx_params_metric ON params(metric_id);
CREATE INDEX IF NOT EXISTS idx_meta_features_metric ON meta_features(metric_id);
`

// Store implements types.Repository using PostgreSQL.
type Store struct {
	*sqlstore.Store
	db *sql.DB
}

// New opens a connection pool to dsn. Call Migrate before first use.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{
		Store: sqlstore.New(db, sqlstore.Dialect{Name: types.BackendPostgres, Rebind: sqlstore.RebindDollar}),
		db:    db,
	}, nil
}

// Open connects, verifies the connection and applies the schema.
func Open(ctx context.Context, config types.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Backend != types.BackendPostgres {
		return nil, fmt.Errorf("postgres backend given %q: %w", config.Backend, types.ErrBackendUnknown)
	}
	s, err := New(config.DSN)
	if err != nil {
		return nil, err
	}
	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return s, nil
}

// Migrate creates tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
