package recommender

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fmlearn/internal/encoder"
	"github.com/mesh-intelligence/fmlearn/internal/metalearn"
	"github.com/mesh-intelligence/fmlearn/internal/selector"
	"github.com/mesh-intelligence/fmlearn/internal/sqlite"
	"github.com/mesh-intelligence/fmlearn/internal/staleness"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

type fixture struct {
	svc     *Service
	repo    *sqlite.Backend
	tracker *staleness.Tracker
	learner *metalearn.Learner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	repo, err := sqlite.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log := zerolog.Nop()
	tracker := staleness.New()
	learner := metalearn.New(repo, metalearn.Config{Neighbors: 3, TrainTimeout: 5 * time.Second}, log)
	sel := selector.New(repo, nil, log)

	svc := New(Deps{Repo: repo, Tracker: tracker, Learner: learner, Selector: sel}, cfg, log)
	return &fixture{svc: svc, repo: repo, tracker: tracker, learner: learner}
}

func classification(hash, alg, metric string, value float64, rows string) *types.MetricRecord {
	return &types.MetricRecord{
		AlgorithmName: alg,
		DatasetHash:   hash,
		MetricName:    metric,
		MetricValue:   value,
		TargetType:    "classification",
		Params:        types.ParamList{{Name: "seed", Value: "1"}},
		MetaFeatures:  types.FeatureList{{Name: "rows", Value: rows}, {Name: "classes", Value: "2"}},
	}
}

func regression(hash, alg, metric string, value float64, rows string) *types.MetricRecord {
	return &types.MetricRecord{
		AlgorithmName: alg,
		DatasetHash:   hash,
		MetricName:    metric,
		MetricValue:   value,
		TargetType:    "regression",
		MetaFeatures:  types.FeatureList{{Name: "rows", Value: rows}, {Name: "targets", Value: "1"}},
	}
}

func (f *fixture) ingest(t *testing.T, recs ...*types.MetricRecord) {
	t.Helper()
	for _, r := range recs {
		_, err := f.svc.Ingest(context.Background(), r)
		require.NoError(t, err)
	}
}

func TestIngest(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	got, err := f.svc.Ingest(context.Background(), classification("ab\x00c", "svc", "accuracy", 0.8, "100"))
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "abc", got.DatasetHash, "null bytes stripped")
	assert.Len(t, got.MetaFeatures, 2)
	assert.Equal(t, staleness.State{Initialized: true, Count: 1}, f.tracker.Snapshot())
}

func TestIngest_Malformed(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.svc.Ingest(context.Background(), &types.MetricRecord{DatasetHash: "h"})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.True(t, IsMalformed(err))
	assert.Equal(t, staleness.State{}, f.tracker.Snapshot(), "failed ingest does not count")
}

func TestRetrieveBest_Scenario(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	for _, v := range []float64{0.5, 0.7, 0.9, 0.3, 0.6} {
		f.ingest(t, classification("abc", "svc", "accuracy", v, "100"))
	}
	ctx := context.Background()

	highest, err := f.svc.RetrieveBest(ctx, "abc", types.Descending)
	require.NoError(t, err)
	require.Equal(t, StatusOK, highest.Status)
	assert.Equal(t, 0.9, highest.Records[0].MetricValue)

	lowest, err := f.svc.RetrieveBest(ctx, "abc\x00", types.Ascending)
	require.NoError(t, err)
	require.Equal(t, StatusOK, lowest.Status)
	assert.Equal(t, 0.3, lowest.Records[0].MetricValue)

	all, err := f.svc.RetrieveAll(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, all.Records, 5)
}

func TestRetrieve_UnknownHash(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.ingest(t, classification("abc", "svc", "accuracy", 0.5, "100"))
	ctx := context.Background()
	before := f.tracker.Snapshot()

	all, err := f.svc.RetrieveAll(ctx, "zzz")
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, all.Status)
	assert.Equal(t, MsgUnavailable, all.Status.Message())

	best, err := f.svc.RetrieveBest(ctx, "zzz", types.Descending)
	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, best.Status)

	assert.Equal(t, before, f.tracker.Snapshot())
	assert.False(t, f.learner.IsModelTrained())

	_, err = f.svc.RetrieveAll(ctx, "\x00")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRecommend_GateClosed(t *testing.T) {
	f := newFixture(t, Config{Threshold: 3})
	ctx := context.Background()
	req := &types.RecommendationRequest{DatasetHash: "new", TargetType: "classification"}

	res, err := f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusNotTrained, res.Status)

	f.ingest(t,
		classification("a", "svc", "accuracy", 0.5, "100"),
		classification("a", "knn", "accuracy", 0.6, "100"),
		classification("a", "lr", "accuracy", 0.7, "100"),
	)
	res, err = f.svc.Recommend(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusNotTrained, res.Status, "count equal to threshold keeps the gate closed")
	assert.False(t, f.learner.IsModelTrained())
}

func TestRecommend_GateClosedAfterRestart(t *testing.T) {
	f := newFixture(t, Config{Threshold: 1})
	ctx := context.Background()
	for _, v := range []float64{0.1, 0.2, 0.3} {
		_, err := f.repo.Ingest(ctx, classification("a", "svc", "accuracy", v, "100"))
		require.NoError(t, err)
	}

	res, err := f.svc.Recommend(ctx, &types.RecommendationRequest{DatasetHash: "n", TargetType: "classification"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotTrained, res.Status, "records from a previous process do not open the gate")
}

func TestRecommend_TrainsLazilyAndSelects(t *testing.T) {
	f := newFixture(t, Config{Threshold: 4, RetrainOnStale: true})
	f.ingest(t,
		classification("iris", "svc", "accuracy", 0.91, "150"),
		classification("iris", "knn", "accuracy", 0.97, "150"),
		classification("iris", "tree", "accuracy", 0.88, "150"),
		classification("mnist", "cnn", "accuracy", 0.99, "70000"),
		regression("housing", "ridge", "rmse", 4.2, "500"),
		regression("housing", "lasso", "rmse", 3.1, "500"),
		regression("housing", "ridge", "r2 score", 0.7, "500"),
		regression("housing", "lasso", "r2 score", 0.8, "500"),
	)

	ctx := context.Background()
	res, err := f.svc.Recommend(ctx, &types.RecommendationRequest{
		DatasetHash:  "new-tabular",
		TargetType:   "classification",
		MetaFeatures: types.FeatureList{{Name: "rows", Value: "160"}, {Name: "classes", Value: "2"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "iris", res.Records[0].DatasetHash)
	assert.Equal(t, "knn", res.Records[0].AlgorithmName)
	assert.Equal(t, 0.97, res.Records[0].MetricValue)

	assert.True(t, f.learner.IsModelTrained())
	assert.Equal(t, int64(0), f.tracker.Snapshot().Count, "counter resets after training")

	reg, err := f.svc.Recommend(ctx, &types.RecommendationRequest{
		DatasetHash:  "new-regression",
		TargetType:   "regression",
		MetaFeatures: types.FeatureList{{Name: "rows", Value: "480"}, {Name: "targets", Value: "1"}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, reg.Status)

	byMetric := map[string]float64{}
	for _, r := range reg.Records {
		assert.Equal(t, "housing", r.DatasetHash)
		byMetric[r.MetricName] = r.MetricValue
	}
	assert.Equal(t, 3.1, byMetric["rmse"], "rmse selects the minimum")
	assert.Equal(t, 0.7, byMetric["r2 score"], "r2 score selects the minimum by default")
}

func TestRecommend_MalformedMetaFeature(t *testing.T) {
	f := newFixture(t, Config{Threshold: 1})
	f.ingest(t,
		classification("a", "svc", "accuracy", 0.5, "100"),
		classification("a", "knn", "accuracy", 0.6, "120"),
	)

	_, err := f.svc.Recommend(context.Background(), &types.RecommendationRequest{
		DatasetHash:  "n",
		TargetType:   "classification",
		MetaFeatures: types.FeatureList{{Name: "rows", Value: "lots"}},
	})
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorIs(t, err, encoder.ErrNonNumeric)
	assert.True(t, IsMalformed(err))

	_, err = f.svc.Recommend(context.Background(), &types.RecommendationRequest{TargetType: "x"})
	assert.True(t, IsMalformed(err))
}

func TestRecommend_RetrainOnStale(t *testing.T) {
	tests := []struct {
		name        string
		retrain     bool
		wantVersion int64
	}{
		{name: "retrain enabled", retrain: true, wantVersion: 2},
		{name: "train once", retrain: false, wantVersion: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Threshold: 2, RetrainOnStale: tt.retrain})
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				f.ingest(t, classification("a", fmt.Sprintf("alg%d", i), "accuracy", float64(i)/10, "100"))
			}
			req := &types.RecommendationRequest{DatasetHash: "n", TargetType: "classification"}

			_, err := f.svc.Recommend(ctx, req)
			require.NoError(t, err)
			require.Equal(t, int64(1), f.learner.Status().SchemaVersion)

			for i := 0; i < 3; i++ {
				f.ingest(t, classification("b", fmt.Sprintf("alg%d", i), "accuracy", 0.5, "999"))
			}
			_, err = f.svc.Recommend(ctx, req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantVersion, f.learner.Status().SchemaVersion)
			if tt.retrain {
				assert.Equal(t, 6, f.learner.Status().Rows)
			} else {
				assert.Equal(t, 3, f.learner.Status().Rows)
			}
		})
	}
}

func TestTrainAndHealth(t *testing.T) {
	f := newFixture(t, Config{Threshold: 10})
	ctx := context.Background()

	err := f.svc.Train(ctx)
	assert.ErrorIs(t, err, metalearn.ErrTraining, "empty store cannot train")

	f.ingest(t, classification("a", "svc", "accuracy", 0.5, "100"))
	require.NoError(t, f.svc.Train(ctx))

	h, err := f.svc.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Records)
	assert.False(t, h.GateOpen)
	assert.Equal(t, metalearn.Trained, h.Learner.State)
	assert.Equal(t, staleness.State{Initialized: true}, h.Staleness)
}

// ingestDuringLoad adds one record through the service the first time the
// learner loads its training data.
type ingestDuringLoad struct {
	repo *sqlite.Backend
	svc  *Service
	rec  *types.MetricRecord
	once sync.Once
	err  error
}

func (s *ingestDuringLoad) QueryAll(ctx context.Context) ([]types.MetricRecord, error) {
	records, err := s.repo.QueryAll(ctx)
	s.once.Do(func() { _, s.err = s.svc.Ingest(ctx, s.rec) })
	return records, err
}

func TestTrain_KeepsRecordsIngestedDuringFit(t *testing.T) {
	f := newFixture(t, Config{Threshold: 10})
	src := &ingestDuringLoad{repo: f.repo, rec: classification("late", "svc", "accuracy", 0.4, "300")}
	learner := metalearn.New(src, metalearn.Config{Neighbors: 3, TrainTimeout: 5 * time.Second}, zerolog.Nop())
	svc := New(Deps{Repo: f.repo, Tracker: f.tracker, Learner: learner, Selector: selector.New(f.repo, nil, zerolog.Nop())}, Config{Threshold: 10}, zerolog.Nop())
	src.svc = svc

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := svc.Ingest(ctx, classification("a", fmt.Sprintf("alg%d", i), "accuracy", 0.5, "100"))
		require.NoError(t, err)
	}
	require.NoError(t, svc.Train(ctx))
	require.NoError(t, src.err)

	assert.Equal(t, 2, learner.Status().Rows)
	assert.Equal(t, staleness.State{Initialized: true, Count: 1}, f.tracker.Snapshot(),
		"record ingested while training stays counted")
}

func TestCRUD(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	rec, err := f.svc.Ingest(ctx, classification("a", "svc", "accuracy", 0.5, "100"))
	require.NoError(t, err)

	rec.MetricValue = 0.6
	updated, err := f.svc.Update(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 0.6, updated.MetricValue)

	deleted, err := f.svc.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, deleted.ID)

	_, err = f.svc.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = f.svc.Delete(ctx, rec.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
