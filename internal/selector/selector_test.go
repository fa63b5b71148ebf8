package selector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// memQuerier answers QueryBest from an in-memory slice.
type memQuerier struct {
	records []types.MetricRecord
	err     error
	calls   []string
}

func (m *memQuerier) QueryBest(_ context.Context, hash, metric string, order types.Order) (*types.MetricRecord, error) {
	m.calls = append(m.calls, metric+":"+order.String())
	if m.err != nil {
		return nil, m.err
	}
	var best *types.MetricRecord
	for i := range m.records {
		r := &m.records[i]
		if r.DatasetHash != hash || !strings.EqualFold(r.MetricName, metric) {
			continue
		}
		if best == nil ||
			(order == types.Descending && r.MetricValue > best.MetricValue) ||
			(order == types.Ascending && r.MetricValue < best.MetricValue) {
			best = r
		}
	}
	if best == nil {
		return nil, types.ErrNotFound
	}
	out := *best
	return &out, nil
}

func rec(id, hash, metric string, value float64) types.MetricRecord {
	return types.MetricRecord{ID: id, DatasetHash: hash, MetricName: metric, MetricValue: value}
}

func cand(hash, metric string) metalearn.Candidate {
	return metalearn.Candidate{DatasetHash: hash, MetricName: metric}
}

func TestSelect_PolicyOrdering(t *testing.T) {
	q := &memQuerier{records: []types.MetricRecord{
		rec("a1", "abc", "accuracy", 0.7),
		rec("a2", "abc", "accuracy", 0.95),
		rec("a3", "abc", "accuracy", 0.2),
		rec("r1", "abc", "rmse", 0.4),
		rec("r2", "abc", "rmse", 0.1),
		rec("r3", "abc", "rmse", 0.9),
	}}
	s := New(q, nil, zerolog.Nop())

	got, err := s.Select(context.Background(), []metalearn.Candidate{
		cand("abc", "Accuracy"),
		cand("abc", "RMSE"),
		cand("other", "accuracy"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.95, got[0].MetricValue)
	assert.Equal(t, 0.1, got[1].MetricValue)
}

func TestSelect_Cases(t *testing.T) {
	records := []types.MetricRecord{
		rec("m1", "h", "mae", 3),
		rec("m2", "h", "mae", 1),
		rec("q1", "h", "r2 score", 0.2),
		rec("q2", "h", "r2 score", 0.8),
	}

	tests := []struct {
		name       string
		policies   types.Policies
		candidates []metalearn.Candidate
		wantIDs    []string
		wantCalls  []string
	}{
		{
			name:       "no candidates",
			candidates: nil,
			wantIDs:    nil,
		},
		{
			name:       "unrecognized metric skipped",
			candidates: []metalearn.Candidate{cand("h", "f1"), cand("h", "mae")},
			wantIDs:    []string{"m2"},
			wantCalls:  []string{"mae:min"},
		},
		{
			name:       "duplicate types queried once",
			candidates: []metalearn.Candidate{cand("h", "mae"), cand("h", "MAE"), cand("h", "mae")},
			wantIDs:    []string{"m2"},
			wantCalls:  []string{"mae:min"},
		},
		{
			name:       "r2 score selects minimum by default",
			candidates: []metalearn.Candidate{cand("h", "r2 score")},
			wantIDs:    []string{"q1"},
		},
		{
			name: "r2 score policy override",
			policies: func() types.Policies {
				p, _ := types.DefaultPolicies().WithOverrides(map[string]string{"r2 score": "max"})
				return p
			}(),
			candidates: []metalearn.Candidate{cand("h", "r2 score")},
			wantIDs:    []string{"q2"},
		},
		{
			name:       "type without match omitted",
			candidates: []metalearn.Candidate{cand("h", "accuracy"), cand("h", "mae")},
			wantIDs:    []string{"m2"},
			wantCalls:  []string{"accuracy:max", "mae:min"},
		},
		{
			name:       "first candidate hash wins",
			candidates: []metalearn.Candidate{cand("missing", "mae"), cand("h", "mae")},
			wantIDs:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &memQuerier{records: records}
			s := New(q, tt.policies, zerolog.Nop())

			got, err := s.Select(context.Background(), tt.candidates)
			require.NoError(t, err)

			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			if tt.wantCalls != nil {
				assert.Equal(t, tt.wantCalls, q.calls)
			}
		})
	}
}

func TestSelect_RepositoryError(t *testing.T) {
	boom := errors.New("connection reset")
	s := New(&memQuerier{err: boom}, nil, zerolog.Nop())

	_, err := s.Select(context.Background(), []metalearn.Candidate{cand("h", "rmse")})
	assert.ErrorIs(t, err, boom)
}
