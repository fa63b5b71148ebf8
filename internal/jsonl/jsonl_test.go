package jsonl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fmlearn/internal/sqlite"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

func TestDecode_SkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"1","algorithm_name":"svc","dataset_hash":"h","metric_name":"accuracy","metric_value":0.5,"target_type":"classification","params":"","meta_features":""}`,
		``,
		`{not json`,
		`{"id":"2","algorithm_name":"lr","dataset_hash":"h","metric_name":"rmse","metric_value":1.5,"target_type":"regression"}`,
	}, "\n")

	got, skipped, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 1.5, got[1].MetricValue)
}

func TestEncodeDecode(t *testing.T) {
	records := []types.MetricRecord{{
		ID:            "a",
		AlgorithmName: "svc",
		DatasetHash:   "h",
		MetricName:    "accuracy",
		MetricValue:   0.25,
		TargetType:    "classification",
		Params:        types.ParamList{{Name: "C", Value: "1"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, records))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	got, skipped, err := Decode(&buf)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, records[0].Params, got[0].Params)
}

func TestWriteFile_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "metrics.jsonl")

	require.NoError(t, WriteFile(path, nil))
	require.NoError(t, WriteFile(path, []types.MetricRecord{{ID: "x"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"x"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, err := sqlite.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	dst, err := sqlite.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	for _, v := range []float64{0.1, 0.2, 0.3} {
		_, err := src.Ingest(ctx, &types.MetricRecord{
			AlgorithmName: "svc", DatasetHash: "h", MetricName: "accuracy",
			MetricValue: v, TargetType: "classification",
			MetaFeatures: types.FeatureList{{Name: "rows", Value: "10"}},
		})
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "export.jsonl")
	n, err := Export(ctx, src, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := Import(ctx, dst, path)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 3, Loaded: 3}, res)

	want, err := src.QueryAll(ctx)
	require.NoError(t, err)
	got, err := dst.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].MetaFeatures, got[i].MetaFeatures)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}
