package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// softResponse carries the textual replies for "not trained" and
// "unavailable".
type softResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// metricRequest is the body of POST /metric and PUT /metric/{id}.
type metricRequest struct {
	AlgorithmName string            `json:"algorithm_name" validate:"required"`
	DatasetHash   string            `json:"dataset_hash" validate:"required"`
	MetricName    string            `json:"metric_name" validate:"required"`
	MetricValue   *float64          `json:"metric_value" validate:"required"`
	TargetType    string            `json:"target_type" validate:"required"`
	Params        types.ParamList   `json:"params" validate:"dive"`
	MetaFeatures  types.FeatureList `json:"meta_features" validate:"dive"`
}

func (m *metricRequest) record() *types.MetricRecord {
	return &types.MetricRecord{
		AlgorithmName: m.AlgorithmName,
		DatasetHash:   m.DatasetHash,
		MetricName:    m.MetricName,
		MetricValue:   *m.MetricValue,
		TargetType:    m.TargetType,
		Params:        m.Params,
		MetaFeatures:  m.MetaFeatures,
	}
}

// hashRequest is the body of the retrieve endpoints.
type hashRequest struct {
	DatasetHash string `json:"dataset_hash" validate:"required"`
}

// predictRequest is the body of /metric/predict.
type predictRequest struct {
	DatasetHash  string            `json:"dataset_hash" validate:"required"`
	TargetType   string            `json:"target_type" validate:"required"`
	MetaFeatures types.FeatureList `json:"meta_features" validate:"dive"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSoft(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, softResponse{Response: msg})
}

// decode reads a JSON body and validates it.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return validateStruct(v)
}
