package types

import (
	"fmt"
	"strings"
)

// MetricType is a recognized metric name. Metric names outside this set are
// stored but never selected for a recommendation.
type MetricType string

// Recognized metric types.
const (
	MetricAccuracy MetricType = "accuracy"
	MetricRMSE     MetricType = "rmse"
	MetricMAE      MetricType = "mae"
	MetricR2       MetricType = "r2 score"
)

// MetricTypes lists the recognized metric types in a stable order.
var MetricTypes = []MetricType{MetricAccuracy, MetricRMSE, MetricMAE, MetricR2}

// ParseMetricType maps a metric name to its type, ignoring case and
// surrounding whitespace.
func ParseMetricType(name string) (MetricType, bool) {
	mt := MetricType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range MetricTypes {
		if mt == known {
			return mt, true
		}
	}
	return "", false
}

// Order selects which extremum of metric_value a query returns.
type Order int

// Orders.
const (
	// Ascending returns the minimum metric_value first.
	Ascending Order = iota
	// Descending returns the maximum metric_value first.
	Descending
)

// String returns "min" or "max".
func (o Order) String() string {
	if o == Descending {
		return "max"
	}
	return "min"
}

// ParseOrder accepts min/asc/ascending and max/desc/descending.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "asc", "ascending":
		return Ascending, nil
	case "max", "desc", "descending":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("%w: %q", ErrOrderUnknown, s)
}

// Policies maps each metric type to the order that yields its best value.
type Policies map[MetricType]Order

// DefaultPolicies returns the built-in table. r2 score selects the minimum,
// matching the historical behavior of the service; override it through
// configuration to select the maximum.
func DefaultPolicies() Policies {
	return Policies{
		MetricAccuracy: Descending,
		MetricRMSE:     Ascending,
		MetricMAE:      Ascending,
		MetricR2:       Ascending,
	}
}

// WithOverrides returns a copy of p with the given metric name to order
// entries applied. Unrecognized metric names are rejected.
func (p Policies) WithOverrides(overrides map[string]string) (Policies, error) {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	for name, order := range overrides {
		mt, ok := ParseMetricType(name)
		if !ok {
			return nil, fmt.Errorf("policy for %q: %w", name, ErrMetricTypeUnknown)
		}
		o, err := ParseOrder(order)
		if err != nil {
			return nil, fmt.Errorf("policy for %q: %w", name, err)
		}
		out[mt] = o
	}
	return out, nil
}

// Lookup returns the order for the metric type.
func (p Policies) Lookup(mt MetricType) (Order, bool) {
	o, ok := p[mt]
	return o, ok
}
