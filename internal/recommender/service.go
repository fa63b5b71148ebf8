// Package recommender wires the metric repository, staleness tracker,
// meta-learner and selector into the operations exposed by the HTTP server
// and the CLI.
package recommender

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fmlearn/internal/encoder"
	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/internal/metrics"
	"github.com/mesh-intelligence/fmlearn/internal/selector"
	"github.com/mesh-intelligence/fmlearn/internal/staleness"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Soft responses returned in place of records.
const (
	MsgNotTrained  = "Model not trained!"
	MsgUnavailable = "Information about the requested dataset is unavailable in the Server!"
	MsgNoMetric    = "No Metric"
)

// ErrMalformed marks a request the caller must fix.
var ErrMalformed = errors.New("malformed request")

// Status classifies a result.
type Status int

// Result statuses.
const (
	StatusOK Status = iota
	StatusNotTrained
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusNotTrained:
		return "not_trained"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "ok"
	}
}

// Message returns the soft response text for non-OK statuses.
func (s Status) Message() string {
	switch s {
	case StatusNotTrained:
		return MsgNotTrained
	case StatusUnavailable:
		return MsgUnavailable
	default:
		return ""
	}
}

// Result carries either records or a soft status.
type Result struct {
	Status  Status
	Records []types.MetricRecord
}

// Config holds recommendation parameters.
type Config struct {
	// Threshold is the record count the store must exceed before a model is
	// trained or a recommendation served.
	Threshold int64
	// RetrainOnStale retrains when more than Threshold records arrived
	// since the last training.
	RetrainOnStale bool
}

// DefaultConfig returns the default recommendation parameters.
func DefaultConfig() Config {
	return Config{Threshold: 10, RetrainOnStale: true}
}

// Service is safe for concurrent use. Construct one per process.
type Service struct {
	repo     types.Repository
	tracker  *staleness.Tracker
	learner  *metalearn.Learner
	selector *selector.Selector
	cfg      Config
	logger   zerolog.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Repo     types.Repository
	Tracker  *staleness.Tracker
	Learner  *metalearn.Learner
	Selector *selector.Selector
}

// New creates a Service from its collaborators.
func New(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:     deps.Repo,
		tracker:  deps.Tracker,
		learner:  deps.Learner,
		selector: deps.Selector,
		cfg:      cfg,
		logger:   logger.With().Str("component", "recommender").Logger(),
	}
}

// Ingest validates and persists a record, then counts it as new data.
func (s *Service) Ingest(ctx context.Context, rec *types.MetricRecord) (*types.MetricRecord, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	id, err := s.repo.Ingest(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("ingest metric: %w", err)
	}
	s.tracker.RecordIngested()
	metrics.RecordsIngested.Inc()

	s.logger.Debug().
		Str("id", id).
		Str("dataset_hash", rec.DatasetHash).
		Str("metric_name", rec.MetricName).
		Msg("metric ingested")

	stored, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload metric: %w", err)
	}
	return stored, nil
}

// Recommend serves a recommendation for a new dataset.
func (s *Service) Recommend(ctx context.Context, req *types.RecommendationRequest) (*Result, error) {
	res, err := s.recommend(ctx, req)
	switch {
	case err != nil:
		metrics.Recommendations.WithLabelValues("error").Inc()
	default:
		metrics.Recommendations.WithLabelValues(res.Status.String()).Inc()
	}
	return res, err
}

func (s *Service) recommend(ctx context.Context, req *types.RecommendationRequest) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	total, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count metrics: %w", err)
	}
	if !s.tracker.IsGateOpen(total, s.cfg.Threshold) {
		return &Result{Status: StatusNotTrained}, nil
	}

	if err := s.ensureModel(ctx); err != nil {
		return nil, err
	}

	schema := s.learner.Schema()
	if schema == nil {
		return nil, metalearn.ErrNotTrained
	}
	row, err := schema.Frame(req.MetaFeatures, req.TargetType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	candidates, err := s.learner.Predict(row)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	records, err := s.selector.Select(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Result{Status: StatusUnavailable}, nil
	}
	return &Result{Status: StatusOK, Records: records}, nil
}

// ensureModel trains lazily on first use and, when enabled, retrains once
// enough new records have arrived. A failed retrain keeps serving the
// previous model.
//
// Only the records counted before training started are consumed, so records
// ingested during the fit still count toward the next retrain.
func (s *Service) ensureModel(ctx context.Context) error {
	if !s.learner.IsModelTrained() {
		seen := s.tracker.Snapshot().Count
		if err := s.learner.LoadDataAndTrain(ctx); err != nil {
			return err
		}
		s.tracker.Consume(seen)
		return nil
	}
	if !s.cfg.RetrainOnStale || !s.tracker.IsStale(s.cfg.Threshold) {
		return nil
	}
	seen := s.tracker.Snapshot().Count
	if err := s.learner.Retrain(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("retrain failed, serving previous model")
		return nil
	}
	s.tracker.Consume(seen)
	return nil
}

// Train forces a training pass regardless of the gate.
func (s *Service) Train(ctx context.Context) error {
	seen := s.tracker.Snapshot().Count
	var err error
	if s.learner.IsModelTrained() {
		err = s.learner.Retrain(ctx)
	} else {
		err = s.learner.LoadDataAndTrain(ctx)
	}
	if err != nil {
		return err
	}
	s.tracker.Consume(seen)
	return nil
}

// RetrieveAll returns every record for a dataset.
func (s *Service) RetrieveAll(ctx context.Context, datasetHash string) (*Result, error) {
	hash := types.NormalizeDatasetHash(datasetHash)
	if hash == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, types.ErrDatasetHashEmpty)
	}
	records, err := s.repo.QueryByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("retrieve metrics: %w", err)
	}
	if len(records) == 0 {
		return &Result{Status: StatusUnavailable}, nil
	}
	return &Result{Status: StatusOK, Records: records}, nil
}

// RetrieveBest returns the record for a dataset with the lowest or highest
// metric value across all metric names.
func (s *Service) RetrieveBest(ctx context.Context, datasetHash string, order types.Order) (*Result, error) {
	hash := types.NormalizeDatasetHash(datasetHash)
	if hash == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, types.ErrDatasetHashEmpty)
	}
	rec, err := s.repo.QueryBest(ctx, hash, "", order)
	if errors.Is(err, types.ErrNotFound) {
		return &Result{Status: StatusUnavailable}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s metric: %w", order, err)
	}
	return &Result{Status: StatusOK, Records: []types.MetricRecord{*rec}}, nil
}

// List returns every stored record.
func (s *Service) List(ctx context.Context) ([]types.MetricRecord, error) {
	return s.repo.QueryAll(ctx)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*types.MetricRecord, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces a stored record.
func (s *Service) Update(ctx context.Context, rec *types.MetricRecord) (*types.MetricRecord, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, rec.ID)
}

// Delete removes a record and its children and returns the removed record.
func (s *Service) Delete(ctx context.Context, id string) (*types.MetricRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

// Health summarizes the engine for health checks.
type Health struct {
	Records   int64            `json:"records"`
	Threshold int64            `json:"threshold"`
	GateOpen  bool             `json:"gate_open"`
	Staleness staleness.State  `json:"staleness"`
	Learner   metalearn.Status `json:"learner"`
}

// Health reports record count, gate state and learner status.
func (s *Service) Health(ctx context.Context) (*Health, error) {
	total, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count metrics: %w", err)
	}
	return &Health{
		Records:   total,
		Threshold: s.cfg.Threshold,
		GateOpen:  s.tracker.IsGateOpen(total, s.cfg.Threshold),
		Staleness: s.tracker.Snapshot(),
		Learner:   s.learner.Status(),
	}, nil
}

// IsMalformed reports whether err should be reported as a client error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, encoder.ErrNonNumeric) ||
		errors.Is(err, types.ErrInvalidID)
}
