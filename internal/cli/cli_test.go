package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fmlearn/internal/jsonl"
	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/pkg/fmlearn"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

type env struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	return &env{
		configDir: filepath.Join(base, "config"),
		dataDir:   filepath.Join(base, "data"),
	}
}

type result struct {
	stdout string
	stderr string
	code   int
}

func (e *env) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	root := NewRootCmd()
	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetIn(strings.NewReader(stdin))
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := run(root, full, &errb)
	return result{stdout: out.String(), stderr: errb.String(), code: code}
}

func (e *env) writeConfig(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte(body), 0o644))
}

func recordJSON(hash, alg, metric string, value float64, rows int) string {
	return fmt.Sprintf(`{"algorithm_name":%q,"dataset_hash":%q,"metric_name":%q,"metric_value":%v,"target_type":"classification","params":"","meta_features":[{"feat_name":"rows","feat_value":%d}]}`,
		alg, hash, metric, value, rows)
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	res := e.run(t, "", "version")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "fmlearn v"+fmlearn.Version)
	assert.Contains(t, res.stdout, fmlearn.ModulePath)
}

func TestInit(t *testing.T) {
	e := newEnv(t)

	res := e.run(t, "", "init")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "initialized successfully")

	data, err := os.ReadFile(filepath.Join(e.configDir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: sqlite")
	assert.Contains(t, string(data), "threshold: 10")
	assert.Contains(t, string(data), "train_timeout: 30s")

	_, err = os.Stat(filepath.Join(e.dataDir, "fmlearn.db"))
	assert.NoError(t, err)

	res = e.run(t, "", "--json", "init")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, false, got["config_written"], "init is idempotent")
}

func TestIngestAndRetrieve(t *testing.T) {
	e := newEnv(t)
	input := "[" + strings.Join([]string{
		recordJSON("abc", "svc", "accuracy", 0.7, 100),
		recordJSON("abc", "knn", "accuracy", 0.9, 100),
		recordJSON("abc", "tree", "accuracy", 0.6, 100),
	}, ",") + "]"

	res := e.run(t, input, "ingest")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Len(t, strings.Fields(res.stdout), 3, "one id per record")

	res = e.run(t, "", "--json", "retrieve", "abc")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var all []types.MetricRecord
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &all))
	assert.Len(t, all, 3)

	tests := []struct {
		best string
		want string
	}{
		{"max", "knn"},
		{"min", "tree"},
	}
	for _, tt := range tests {
		t.Run(tt.best, func(t *testing.T) {
			res := e.run(t, "", "--json", "retrieve", "abc", "--best", tt.best)
			require.Equal(t, exitSuccess, res.code, res.stderr)
			var got []types.MetricRecord
			require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].AlgorithmName)
		})
	}

	res = e.run(t, "", "retrieve", "unknown")
	require.Equal(t, exitSuccess, res.code)
	assert.Equal(t, recommender.MsgUnavailable+"\n", res.stdout)

	res = e.run(t, "", "retrieve", "abc", "--best", "median")
	assert.Equal(t, exitUserError, res.code)
}

func TestIngest_Invalid(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "{"},
		{"empty array", "[]"},
		{"missing algorithm", `{"dataset_hash":"h","metric_name":"accuracy","metric_value":1,"target_type":"classification"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.run(t, tt.input, "ingest")
			assert.Equal(t, exitUserError, res.code)
			assert.Contains(t, res.stderr, "error:")
		})
	}
}

func TestRecommend(t *testing.T) {
	e := newEnv(t)
	e.writeConfig(t, "threshold: 2\nneighbors: 2\nlog:\n  level: disabled\n")

	res := e.run(t, "", "recommend", "--hash", "new", "--target-type", "classification", "--feature", "rows=110")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Equal(t, recommender.MsgNotTrained+"\n", res.stdout)

	input := "[" + strings.Join([]string{
		recordJSON("small", "svc", "accuracy", 0.7, 100),
		recordJSON("small", "knn", "accuracy", 0.9, 120),
		recordJSON("large", "cnn", "accuracy", 0.99, 90000),
		recordJSON("large", "svc", "accuracy", 0.5, 80000),
	}, ",") + "]"
	require.Equal(t, exitSuccess, e.run(t, input, "ingest").code)

	res = e.run(t, "", "--json", "recommend", "--hash", "new", "--target-type", "classification", "--feature", "rows=110")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var got []types.MetricRecord
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got), res.stdout)
	require.Len(t, got, 1)
	assert.Equal(t, "small", got[0].DatasetHash)
	assert.Equal(t, "knn", got[0].AlgorithmName)

	res = e.run(t, "", "recommend", "--hash", "new", "--target-type", "classification", "--feature", "rows")
	assert.Equal(t, exitUserError, res.code)
	res = e.run(t, "", "recommend", "--hash", "new", "--target-type", "classification", "--feature", "rows=lots")
	assert.Equal(t, exitUserError, res.code)
	res = e.run(t, "", "recommend", "--target-type", "classification")
	assert.Equal(t, exitUserError, res.code, "hash is required")
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, exitSuccess, e.run(t, recordJSON("abc", "svc", "accuracy", 0.7, 100), "ingest").code)

	res := e.run(t, "", "--json", "status")
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var h recommender.Health
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &h))
	assert.Equal(t, int64(1), h.Records)
	assert.Equal(t, int64(10), h.Threshold)
	assert.False(t, h.GateOpen, "a fresh process has not ingested")

	res = e.run(t, "", "status")
	require.Equal(t, exitSuccess, res.code)
	assert.Contains(t, res.stdout, "records:   1")
	assert.Contains(t, res.stdout, "model:     untrained")
}

func TestExportImport(t *testing.T) {
	src := newEnv(t)
	input := "[" + recordJSON("abc", "svc", "accuracy", 0.7, 100) + "," + recordJSON("abc", "knn", "rmse", 0.2, 100) + "]"
	require.Equal(t, exitSuccess, src.run(t, input, "ingest").code)

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	res := src.run(t, "", "export", path)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "exported 2 records")

	records, skipped, err := jsonl.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Zero(t, skipped)

	dst := newEnv(t)
	res = dst.run(t, "", "--json", "import", path)
	require.Equal(t, exitSuccess, res.code, res.stderr)
	var got jsonl.ImportResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, jsonl.ImportResult{Read: 2, Loaded: 2}, got)

	res = dst.run(t, "", "--json", "retrieve", "abc")
	require.Equal(t, exitSuccess, res.code)
	var all []types.MetricRecord
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &all))
	require.Len(t, all, 2)
	assert.Equal(t, records[0].ID, all[0].ID)

	res = dst.run(t, "", "import", filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Equal(t, exitSysError, res.code)
}
