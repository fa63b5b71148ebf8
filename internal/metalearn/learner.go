// Package metalearn fits a similarity model over stored metric records and
// predicts, for a new dataset's meta-features, which historical records are
// most relevant.
//
// A Learner moves through Untrained, Training and Trained. Concurrent training
// requests collapse into one run; the fitted schema, encoder and model are
// published together so a prediction never observes a partial fit.
package metalearn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mesh-intelligence/fmlearn/internal/encoder"
	"github.com/mesh-intelligence/fmlearn/internal/metrics"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Learner errors.
var (
	ErrNotTrained = errors.New("model not trained")
	ErrTraining   = errors.New("training failed")
	ErrEmptyTable = errors.New("no metric records to train on")
	ErrRowWidth   = errors.New("row width does not match schema")
)

// State is the learner's lifecycle state.
type State int

// Learner states.
const (
	Untrained State = iota
	Training
	Trained
)

func (s State) String() string {
	switch s {
	case Training:
		return "training"
	case Trained:
		return "trained"
	default:
		return "untrained"
	}
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "untrained":
		*s = Untrained
	case "training":
		*s = Training
	case "trained":
		*s = Trained
	default:
		return fmt.Errorf("unknown learner state %q", text)
	}
	return nil
}

// Source supplies the records to train on.
type Source interface {
	QueryAll(ctx context.Context) ([]types.MetricRecord, error)
}

// Config holds training parameters.
type Config struct {
	// Neighbors is the number of candidates returned by Predict. Zero or a
	// value above the table size returns every row.
	Neighbors int
	// TrainTimeout bounds one training pass. Zero disables the bound.
	TrainTimeout time.Duration
}

// DefaultConfig returns the default training parameters.
func DefaultConfig() Config {
	return Config{Neighbors: 5, TrainTimeout: 30 * time.Second}
}

// Status is a point-in-time view of the learner.
type Status struct {
	State         State      `json:"state"`
	SchemaVersion int64      `json:"schema_version"`
	Rows          int        `json:"rows"`
	Columns       []string   `json:"columns,omitempty"`
	TrainedAt     *time.Time `json:"trained_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type snapshot struct {
	schema    *encoder.Schema
	model     *neighbors
	rows      int
	trainedAt time.Time
}

// Learner is safe for concurrent use.
type Learner struct {
	source Source
	cfg    Config
	logger zerolog.Logger

	group   singleflight.Group
	current atomic.Pointer[snapshot]

	mu      sync.Mutex
	state   State
	version int64
	lastErr error
}

// New creates an untrained learner.
func New(source Source, cfg Config, logger zerolog.Logger) *Learner {
	return &Learner{
		source: source,
		cfg:    cfg,
		logger: logger.With().Str("component", "metalearn").Logger(),
	}
}

// IsModelTrained reports whether a fitted model is available. It stays true
// while a retrain is in progress.
func (l *Learner) IsModelTrained() bool {
	return l.current.Load() != nil
}

// State returns the lifecycle state.
func (l *Learner) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LoadDataAndTrain trains once. It is a no-op when a model is already
// fitted.
func (l *Learner) LoadDataAndTrain(ctx context.Context) error {
	return l.train(ctx, false)
}

// Retrain fits a fresh model over the current records and replaces the
// existing one on success. On failure the previous model stays in service.
func (l *Learner) Retrain(ctx context.Context) error {
	return l.train(ctx, true)
}

func (l *Learner) train(ctx context.Context, force bool) error {
	if !force && l.IsModelTrained() {
		return nil
	}

	ch := l.group.DoChan("train", func() (any, error) {
		// Detached so one caller's cancellation does not abort a run other
		// callers are waiting on.
		runCtx := context.WithoutCancel(ctx)
		if l.cfg.TrainTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, l.cfg.TrainTimeout)
			defer cancel()
		}
		return nil, l.run(runCtx, force)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Learner) run(ctx context.Context, force bool) error {
	if !force && l.IsModelTrained() {
		return nil
	}

	l.mu.Lock()
	prev := l.state
	l.state = Training
	l.version++
	version := l.version
	l.mu.Unlock()

	start := time.Now()
	snap, err := l.fit(ctx, version)
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = prev
		l.lastErr = err
		metrics.TrainingRuns.WithLabelValues("failure").Inc()
		l.logger.Error().Err(err).Int64("schema_version", version).Msg("training failed")
		return fmt.Errorf("%w: %w", ErrTraining, err)
	}

	l.current.Store(snap)
	l.state = Trained
	l.lastErr = nil
	metrics.TrainingRuns.WithLabelValues("success").Inc()
	metrics.TrainingRows.Set(float64(snap.rows))
	l.logger.Info().
		Int64("schema_version", version).
		Int("rows", snap.rows).
		Int("columns", snap.schema.Width()).
		Dur("duration", time.Since(start)).
		Msg("model trained")
	return nil
}

func (l *Learner) fit(ctx context.Context, version int64) (*snapshot, error) {
	records, err := l.source.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := BuildTrainingTable(records, version)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &snapshot{
		schema:    table.Schema,
		model:     fitNeighbors(table, l.cfg.Neighbors),
		rows:      len(table.Rows),
		trainedAt: time.Now().UTC(),
	}, nil
}

// Predict returns the candidates nearest to row, closest first. The row must
// follow the layout of Schema.
func (l *Learner) Predict(row []float64) ([]Candidate, error) {
	snap := l.current.Load()
	if snap == nil {
		return nil, ErrNotTrained
	}
	if len(row) != snap.schema.Width() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(row), snap.schema.Width())
	}
	return snap.model.predict(row), nil
}

// Schema returns the column schema of the fitted model, or nil when
// untrained.
func (l *Learner) Schema() *encoder.Schema {
	if snap := l.current.Load(); snap != nil {
		return snap.schema
	}
	return nil
}

// Encoders returns the fitted categorical encoders keyed by field name.
func (l *Learner) Encoders() map[string]*encoder.OneHot {
	s := l.Schema()
	if s == nil {
		return nil
	}
	return map[string]*encoder.OneHot{s.TargetType.Field(): s.TargetType}
}

// FeatureColumns returns the canonical column list, or nil when untrained.
func (l *Learner) FeatureColumns() []string {
	if s := l.Schema(); s != nil {
		return s.Columns()
	}
	return nil
}

// Status reports the learner state for health checks.
func (l *Learner) Status() Status {
	l.mu.Lock()
	st := Status{State: l.state}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	l.mu.Unlock()

	if snap := l.current.Load(); snap != nil {
		st.SchemaVersion = snap.schema.Version
		st.Rows = snap.rows
		st.Columns = snap.schema.Columns()
		trainedAt := snap.trainedAt
		st.TrainedAt = &trainedAt
	}
	return st
}
