// Package store is the public factory for fmlearn metric repositories. It
// selects the backend named in the config while keeping implementations
// internal.
//
// Example:
//
//	repo, err := store.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".fmlearn-db",
//	})
//	defer repo.Close()
package store

import (
	"context"

	"github.com/mesh-intelligence/fmlearn/internal/postgres"
	"github.com/mesh-intelligence/fmlearn/internal/sqlite"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Repository is a metric repository that also accepts bulk loads.
type Repository interface {
	types.Repository
	types.Loader
}

// Open validates config and opens the selected backend.
func Open(ctx context.Context, config types.Config) (Repository, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Backend == types.BackendPostgres {
		s, err := postgres.Open(ctx, config)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	b, err := sqlite.Open(config)
	if err != nil {
		return nil, err
	}
	return b, nil
}
