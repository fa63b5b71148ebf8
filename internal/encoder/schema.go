package encoder

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Missing fills every column a row does not populate. Classification and
// regression records carry disjoint meta-features, so gaps are expected.
const Missing = -1.0

// TargetTypeField names the encoded categorical field.
const TargetTypeField = "target_type"

// Schema is the canonical column layout produced by one training pass:
// meta-feature columns in lexical order followed by the target-type
// indicator columns.
type Schema struct {
	Version      int64
	MetaFeatures []string
	TargetType   *OneHot

	position map[string]int
}

// NewSchema builds a schema over the given meta-feature names and fitted
// encoder. Duplicate names are collapsed.
func NewSchema(version int64, metaFeatures []string, targetType *OneHot) *Schema {
	set := make(map[string]struct{}, len(metaFeatures))
	names := make([]string, 0, len(metaFeatures))
	for _, n := range metaFeatures {
		if _, ok := set[n]; ok {
			continue
		}
		set[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)

	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	return &Schema{
		Version:      version,
		MetaFeatures: names,
		TargetType:   targetType,
		position:     pos,
	}
}

// Columns returns the full ordered column list.
func (s *Schema) Columns() []string {
	cols := make([]string, 0, s.Width())
	cols = append(cols, s.MetaFeatures...)
	return append(cols, s.TargetType.Columns()...)
}

// Width is the number of columns in a row.
func (s *Schema) Width() int {
	return len(s.MetaFeatures) + len(s.TargetType.Categories())
}

// TrainingRow builds the row for a stored record. Stored values that do not
// parse as numbers are treated as missing.
func (s *Schema) TrainingRow(rec *types.MetricRecord) []float64 {
	row := s.blank()
	for _, f := range rec.MetaFeatures {
		i, ok := s.position[f.Name]
		if !ok {
			continue
		}
		if v, err := ParseValue(f.Value); err == nil {
			row[i] = v
		}
	}
	s.setIndicators(row, rec.TargetType)
	return row
}

// Frame builds the inference row for a request. Meta-features unknown to the
// schema are ignored; a known meta-feature that is not numeric is an error.
func (s *Schema) Frame(metaFeatures []types.MetaFeature, targetType string) ([]float64, error) {
	row := s.blank()
	for _, f := range metaFeatures {
		i, ok := s.position[f.Name]
		if !ok {
			continue
		}
		v, err := ParseValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("meta-feature %q: %w", f.Name, err)
		}
		row[i] = v
	}
	s.setIndicators(row, targetType)
	return row, nil
}

func (s *Schema) blank() []float64 {
	row := make([]float64, s.Width())
	for i := range s.MetaFeatures {
		row[i] = Missing
	}
	return row
}

func (s *Schema) setIndicators(row []float64, targetType string) {
	copy(row[len(s.MetaFeatures):], s.TargetType.Transform(targetType))
}

// ParseValue coerces a stored or requested meta-feature value to a finite
// float64. NaN and infinities are rejected.
func ParseValue(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, ErrNonNumeric
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNonNumeric, v)
	}
	return f, nil
}
