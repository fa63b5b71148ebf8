// Package encoder turns categorical and meta-feature values into the numeric
// columns the meta-learner is trained on, and keeps the inference-time column
// layout identical to the training-time one.
package encoder

import (
	"errors"
	"fmt"
	"sort"
)

// Encoder errors.
var (
	ErrNoCategories = errors.New("no categories to fit")
	ErrNonNumeric   = errors.New("non-numeric meta-feature value")
)

// OneHot is a fitted indicator encoding of one categorical field. It is
// immutable once returned by Fit.
type OneHot struct {
	field      string
	categories []string
	index      map[string]int
}

// Fit builds an encoding over the distinct non-empty values, ordered
// lexically.
func Fit(field string, values []string) (*OneHot, error) {
	seen := make(map[string]struct{}, len(values))
	var cats []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		cats = append(cats, v)
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("fit %s: %w", field, ErrNoCategories)
	}
	sort.Strings(cats)

	index := make(map[string]int, len(cats))
	for i, c := range cats {
		index[c] = i
	}
	return &OneHot{field: field, categories: cats, index: index}, nil
}

// Field returns the encoded field name.
func (e *OneHot) Field() string { return e.field }

// Categories returns a copy of the fitted categories in column order.
func (e *OneHot) Categories() []string {
	return append([]string(nil), e.categories...)
}

// Columns returns the indicator column names, "<field>: <category>".
func (e *OneHot) Columns() []string {
	cols := make([]string, len(e.categories))
	for i, c := range e.categories {
		cols[i] = e.field + ": " + c
	}
	return cols
}

// Transform returns the indicator vector for value. A category not seen at
// fit time encodes as all zeros.
func (e *OneHot) Transform(value string) []float64 {
	out := make([]float64, len(e.categories))
	if i, ok := e.index[value]; ok {
		out[i] = 1
	}
	return out
}
