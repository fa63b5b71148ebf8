package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/internal/logging"
	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/internal/selector"
	"github.com/mesh-intelligence/fmlearn/internal/staleness"
	"github.com/mesh-intelligence/fmlearn/pkg/store"
)

// app is the per-command wiring of repository, service and logger.
type app struct {
	settings *settings
	repo     store.Repository
	svc      *recommender.Service
	logger   zerolog.Logger
}

// openApp loads settings, opens the configured repository and builds the
// recommender service. The caller must Close the app.
func openApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	s, err := loadSettings(flags)
	if err != nil {
		return nil, userError("%w", err)
	}
	s.Log.Output = cmd.ErrOrStderr()
	logger := logging.New(s.Log)
	return buildApp(cmd.Context(), s, logger)
}

func buildApp(ctx context.Context, s *settings, logger zerolog.Logger) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := store.Open(ctx, s.Store)
	if err != nil {
		return nil, sysError("open %s store: %w", s.Store.Backend, err)
	}

	svc := recommender.New(recommender.Deps{
		Repo:     repo,
		Tracker:  staleness.New(),
		Learner:  metalearn.New(repo, s.Learner, logger),
		Selector: selector.New(repo, s.Policies, logger),
	}, s.Recommender, logger)

	logger.Debug().
		Str("backend", s.Store.Backend).
		Str("data_dir", s.Store.DataDir).
		Int64("threshold", s.Recommender.Threshold).
		Msg("store opened")

	return &app{settings: s, repo: repo, svc: svc, logger: logger}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// closeApp closes a and keeps the first error.
func closeApp(a *app, errp *error) {
	if cerr := a.Close(); cerr != nil && *errp == nil {
		*errp = sysError("close store: %w", cerr)
	}
}
