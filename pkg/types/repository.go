package types

import (
	"context"
	"errors"
)

// Repository is the durable store of metric records. Implementations persist
// a record and its children atomically and cascade deletes to the children.
type Repository interface {
	// Ingest persists the record with its params and meta-features and
	// returns the generated ID.
	Ingest(ctx context.Context, rec *MetricRecord) (string, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*MetricRecord, error)

	// Update replaces the scalar fields and children of an existing record.
	Update(ctx context.Context, rec *MetricRecord) error

	// Delete removes the record and its children.
	Delete(ctx context.Context, id string) error

	// QueryAll returns every record with its params and meta-features in
	// insertion order.
	QueryAll(ctx context.Context) ([]MetricRecord, error)

	// QueryByHash returns the records for one dataset in insertion order.
	QueryByHash(ctx context.Context, datasetHash string) ([]MetricRecord, error)

	// QueryBest returns the record for datasetHash with the lowest
	// (Ascending) or highest (Descending) metric_value. A non-empty
	// metricName restricts the match, compared case-insensitively.
	// Returns ErrNotFound when nothing matches.
	QueryBest(ctx context.Context, datasetHash, metricName string, order Order) (*MetricRecord, error)

	// CountAll returns the total number of records.
	CountAll(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// Repository errors.
var (
	ErrNotFound          = errors.New("metric not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrClosed            = errors.New("repository is closed")
	ErrMetricTypeUnknown = errors.New("unknown metric type")
	ErrOrderUnknown      = errors.New("unknown order")
)

// Loader bulk-inserts records that already carry IDs, as produced by an
// export. Records whose ID is already stored are skipped.
type Loader interface {
	Load(ctx context.Context, records []MetricRecord) (int, error)
}
