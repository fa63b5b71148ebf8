package sqlite

// Schema DDL. Statements are idempotent so Attach preserves existing data.
const (
	createMetrics = `CREATE TABLE IF NOT EXISTS metrics (
    metric_id TEXT PRIMARY KEY,
    algorithm_name TEXT NOT NULL,
    dataset_hash TEXT NOT NULL,
    metric_name TEXT NOT NULL,
    metric_value REAL NOT NULL,
    target_type TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createParams = `CREATE TABLE IF NOT EXISTS params (
    param_id TEXT PRIMARY KEY,
    metric_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    FOREIGN KEY (metric_id) REFERENCES metrics(metric_id) ON DELETE CASCADE
);`

	createMetaFeatures = `CREATE TABLE IF NOT EXISTS meta_features (
    feature_id TEXT PRIMARY KEY,
    metric_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    FOREIGN KEY (metric_id) REFERENCES metrics(metric_id) ON DELETE CASCADE
);`
)

// Index DDL for the recommendation queries.
const (
	idxMetricsHash        = `CREATE INDEX IF NOT EXISTS idx_metrics_hash ON metrics(dataset_hash, metric_value);`
	idxMetricsCreated     = `CREATE INDEX IF NOT EXISTS idx_metrics_created ON metrics(created_at);`
	idxParamsMetric       = `CREATE INDEX IF NOT EXISTS idx_params_metric ON params(metric_id);`
	idxMetaFeaturesMetric = `CREATE INDEX IF NOT EXISTS idx_meta_features_metric ON meta_features(metric_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createMetrics,
	createParams,
	createMetaFeatures,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxMetricsHash,
	idxMetricsCreated,
	idxParamsMetric,
	idxMetaFeaturesMetric,
}
