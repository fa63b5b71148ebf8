// Package sqlite implements the embedded SQLite metric repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/fmlearn/internal/sqlstore"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// DBFileName is the database file created inside DataDir.
const DBFileName = "fmlearn.db"

// Backend implements types.Repository on a SQLite file. Operations return
// types.ErrClosed when the backend is not attached.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	store    *sqlstore.Store
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Open creates and attaches a backend in one step.
func Open(config types.Config) (*Backend, error) {
	b := NewBackend()
	if err := b.Attach(config); err != nil {
		return nil, err
	}
	return b, nil
}

// Attach opens (or creates) DataDir/fmlearn.db and applies the schema.
// Existing records are preserved.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendSQLite {
		return fmt.Errorf("sqlite backend given %q: %w", config.Backend, types.ErrBackendUnknown)
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dataDir, DBFileName) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.store = sqlstore.New(db, sqlstore.Dialect{Name: types.BackendSQLite})
	b.attached = true
	return nil
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.store = nil
	b.attached = false
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Close implements types.Repository.
func (b *Backend) Close() error {
	return b.Detach()
}

// Path returns the database file path, or "" when detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return ""
	}
	dir := b.config.DataDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DBFileName)
}

// with runs fn against the store while holding the read lock.
func (b *Backend) with(fn func(s *sqlstore.Store) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrClosed
	}
	return fn(b.store)
}

// Ingest implements types.Repository.
func (b *Backend) Ingest(ctx context.Context, rec *types.MetricRecord) (id string, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		id, err = s.Ingest(ctx, rec)
		return err
	})
	return id, err
}

// Get implements types.Repository.
func (b *Backend) Get(ctx context.Context, id string) (rec *types.MetricRecord, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		rec, err = s.Get(ctx, id)
		return err
	})
	return rec, err
}

// Update implements types.Repository.
func (b *Backend) Update(ctx context.Context, rec *types.MetricRecord) error {
	return b.with(func(s *sqlstore.Store) error { return s.Update(ctx, rec) })
}

// Delete implements types.Repository.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.with(func(s *sqlstore.Store) error { return s.Delete(ctx, id) })
}

// QueryAll implements types.Repository.
func (b *Backend) QueryAll(ctx context.Context) (recs []types.MetricRecord, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		recs, err = s.QueryAll(ctx)
		return err
	})
	return recs, err
}

// QueryByHash implements types.Repository.
func (b *Backend) QueryByHash(ctx context.Context, datasetHash string) (recs []types.MetricRecord, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		recs, err = s.QueryByHash(ctx, datasetHash)
		return err
	})
	return recs, err
}

// QueryBest implements types.Repository.
func (b *Backend) QueryBest(ctx context.Context, datasetHash, metricName string, order types.Order) (rec *types.MetricRecord, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		rec, err = s.QueryBest(ctx, datasetHash, metricName, order)
		return err
	})
	return rec, err
}

// CountAll implements types.Repository.
func (b *Backend) CountAll(ctx context.Context) (n int64, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		n, err = s.CountAll(ctx)
		return err
	})
	return n, err
}

// Load implements types.Loader.
func (b *Backend) Load(ctx context.Context, records []types.MetricRecord) (n int, err error) {
	err = b.with(func(s *sqlstore.Store) error {
		n, err = s.Load(ctx, records)
		return err
	})
	return n, err
}
