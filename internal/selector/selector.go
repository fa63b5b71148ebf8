// Package selector turns the meta-learner's candidates into one concrete
// recommended record per recognized metric type.
package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Querier returns the best stored record for a dataset and metric.
type Querier interface {
	QueryBest(ctx context.Context, datasetHash, metricName string, order types.Order) (*types.MetricRecord, error)
}

// Selector applies an ordering policy per metric type.
type Selector struct {
	repo     Querier
	policies types.Policies
	logger   zerolog.Logger
}

// New creates a Selector. A nil policies table uses types.DefaultPolicies.
func New(repo Querier, policies types.Policies, logger zerolog.Logger) *Selector {
	if policies == nil {
		policies = types.DefaultPolicies()
	}
	return &Selector{
		repo:     repo,
		policies: policies,
		logger:   logger.With().Str("component", "selector").Logger(),
	}
}

// Select targets the dataset of the first candidate and, for each distinct
// recognized metric type among the candidates, returns the stored record
// chosen by that type's policy. Types without a policy or without a match
// are omitted. Results follow the order in which the types first appear.
func (s *Selector) Select(ctx context.Context, candidates []metalearn.Candidate) ([]types.MetricRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	hash := candidates[0].DatasetHash

	var out []types.MetricRecord
	seen := make(map[types.MetricType]bool)
	for _, c := range candidates {
		mt, ok := types.ParseMetricType(c.MetricName)
		if !ok {
			s.logger.Debug().Str("metric_name", c.MetricName).Msg("skipping unrecognized metric")
			continue
		}
		if seen[mt] {
			continue
		}
		seen[mt] = true

		order, ok := s.policies.Lookup(mt)
		if !ok {
			continue
		}
		rec, err := s.repo.QueryBest(ctx, hash, string(mt), order)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("select %s for %s: %w", mt, hash, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}
