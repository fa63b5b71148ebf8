package types

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// Record validation errors.
var (
	ErrAlgorithmNameEmpty   = errors.New("algorithm_name must not be empty")
	ErrDatasetHashEmpty     = errors.New("dataset_hash must not be empty")
	ErrMetricNameEmpty      = errors.New("metric_name must not be empty")
	ErrTargetTypeEmpty      = errors.New("target_type must not be empty")
	ErrMetaFeatureNameEmpty = errors.New("meta-feature name must not be empty")
	ErrInvalidValue         = errors.New("invalid value")
)

// MetricRecord is one measured run of an algorithm on a dataset. Params and
// MetaFeatures are owned by the record and are deleted with it.
type MetricRecord struct {
	ID            string      `json:"id"`
	AlgorithmName string      `json:"algorithm_name"`
	DatasetHash   string      `json:"dataset_hash"`
	MetricName    string      `json:"metric_name"`
	MetricValue   float64     `json:"metric_value"`
	TargetType    string      `json:"target_type"`
	Params        ParamList   `json:"params"`
	MetaFeatures  FeatureList `json:"meta_features"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Param is an algorithm hyperparameter recorded with a metric.
type Param struct {
	Name  string `json:"param_name" validate:"required"`
	Value string `json:"param_value"`
}

// MetaFeature is a dataset summary statistic recorded with a metric.
type MetaFeature struct {
	Name  string `json:"feat_name" validate:"required"`
	Value string `json:"feat_value"`
}

// ParamList decodes from a JSON array, null, or the empty string.
type ParamList []Param

// FeatureList decodes from a JSON array, null, or the empty string.
type FeatureList []MetaFeature

// UnmarshalJSON accepts "" as an empty list.
func (l *ParamList) UnmarshalJSON(data []byte) error {
	if isEmptyJSON(data) {
		*l = nil
		return nil
	}
	var items []Param
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	*l = items
	return nil
}

// UnmarshalJSON accepts "" as an empty list.
func (l *FeatureList) UnmarshalJSON(data []byte) error {
	if isEmptyJSON(data) {
		*l = nil
		return nil
	}
	var items []MetaFeature
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode meta_features: %w", err)
	}
	*l = items
	return nil
}

// UnmarshalJSON accepts a string or numeric value.
func (p *Param) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string `json:"param_name"`
		Value any    `json:"param_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := scalarString(raw.Value)
	if err != nil {
		return fmt.Errorf("param %q: %w", raw.Name, err)
	}
	p.Name, p.Value = raw.Name, v
	return nil
}

// UnmarshalJSON accepts a string or numeric value.
func (f *MetaFeature) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string `json:"feat_name"`
		Value any    `json:"feat_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := scalarString(raw.Value)
	if err != nil {
		return fmt.Errorf("meta-feature %q: %w", raw.Name, err)
	}
	f.Name, f.Value = raw.Name, v
	return nil
}

func isEmptyJSON(data []byte) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null")) || bytes.Equal(d, []byte(`""`))
}

func scalarString(v any) (string, error) {
	switch v.(type) {
	case nil:
		return "", nil
	case map[string]any, []any:
		return "", ErrInvalidValue
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return s, nil
}

// NormalizeDatasetHash removes embedded null bytes from a dataset hash.
func NormalizeDatasetHash(hash string) string {
	return strings.ReplaceAll(hash, "\x00", "")
}

// Normalize strips null bytes from the dataset hash in place.
func (r *MetricRecord) Normalize() {
	r.DatasetHash = NormalizeDatasetHash(r.DatasetHash)
}

// Validate reports the first missing required field.
func (r *MetricRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.AlgorithmName) == "":
		return ErrAlgorithmNameEmpty
	case r.DatasetHash == "":
		return ErrDatasetHashEmpty
	case strings.TrimSpace(r.MetricName) == "":
		return ErrMetricNameEmpty
	case strings.TrimSpace(r.TargetType) == "":
		return ErrTargetTypeEmpty
	}
	return nil
}
