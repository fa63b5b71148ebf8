// Package sqlstore implements types.Repository over database/sql. The sqlite
// and postgres backends share these queries and differ only in driver,
// schema DDL, and placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Dialect adapts query text to a driver.
type Dialect struct {
	Name string
	// Rebind rewrites "?" placeholders. Nil leaves queries unchanged.
	Rebind func(query string) string
}

// Store runs the metric queries against db.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database whose schema already exists.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

const metricColumns = "metric_id, algorithm_name, dataset_hash, metric_name, metric_value, target_type, created_at"

// timeLayout is fixed width so created_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func (s *Store) q(query string) string {
	if s.dialect.Rebind == nil {
		return query
	}
	return s.dialect.Rebind(query)
}

// newUUID generates a UUID v7 string.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Ingest inserts the record and its children in one transaction. The record's
// ID and CreatedAt are set on success.
func (s *Store) Ingest(ctx context.Context, rec *types.MetricRecord) (string, error) {
	id := newUUID()
	created := time.Now().UTC()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO metrics (`+metricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			id, rec.AlgorithmName, rec.DatasetHash, rec.MetricName, rec.MetricValue, rec.TargetType,
			created.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
		return s.insertChildren(ctx, tx, id, rec)
	})
	if err != nil {
		return "", err
	}
	rec.ID = id
	rec.CreatedAt = created
	return id, nil
}

// Get returns one record with its children.
func (s *Store) Get(ctx context.Context, id string) (*types.MetricRecord, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+metricColumns+` FROM metrics WHERE metric_id = ?`), id)
	rec, err := scanMetric(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, []*types.MetricRecord{rec}, "metric_id = ?", id); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update replaces the scalar fields and children of an existing record.
func (s *Store) Update(ctx context.Context, rec *types.MetricRecord) error {
	if rec.ID == "" {
		return types.ErrInvalidID
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE metrics
			SET algorithm_name = ?, dataset_hash = ?, metric_name = ?, metric_value = ?, target_type = ?
			WHERE metric_id = ?`),
			rec.AlgorithmName, rec.DatasetHash, rec.MetricName, rec.MetricValue, rec.TargetType, rec.ID)
		if err != nil {
			return fmt.Errorf("update metric: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		if err := s.deleteChildren(ctx, tx, rec.ID); err != nil {
			return err
		}
		return s.insertChildren(ctx, tx, rec.ID, rec)
	})
}

// Delete removes the record and its children.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM metrics WHERE metric_id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete metric: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// QueryAll returns every record in insertion order.
func (s *Store) QueryAll(ctx context.Context) ([]types.MetricRecord, error) {
	return s.fetch(ctx, "", nil)
}

// QueryByHash returns the records for one dataset in insertion order.
func (s *Store) QueryByHash(ctx context.Context, datasetHash string) ([]types.MetricRecord, error) {
	return s.fetch(ctx, "dataset_hash = ?", []any{datasetHash})
}

// QueryBest returns the extremum record for a dataset, optionally restricted
// to one metric name.
func (s *Store) QueryBest(ctx context.Context, datasetHash, metricName string, order types.Order) (*types.MetricRecord, error) {
	where := "dataset_hash = ?"
	args := []any{datasetHash}
	if metricName != "" {
		where += " AND LOWER(metric_name) = LOWER(?)"
		args = append(args, metricName)
	}
	dir := "ASC"
	if order == types.Descending {
		dir = "DESC"
	}
	query := `SELECT ` + metricColumns + ` FROM metrics WHERE ` + where +
		` ORDER BY metric_value ` + dir + `, created_at, metric_id LIMIT 1`

	rec, err := scanMetric(s.db.QueryRowContext(ctx, s.q(query), args...))
	if err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, []*types.MetricRecord{rec}, "metric_id = ?", rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// CountAll returns the total number of records.
func (s *Store) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count metrics: %w", err)
	}
	return n, nil
}

// fetch loads metrics matching where, then their children in two queries.
func (s *Store) fetch(ctx context.Context, where string, args []any) ([]types.MetricRecord, error) {
	query := `SELECT ` + metricColumns + ` FROM metrics`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY created_at, metric_id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []types.MetricRecord
	for rows.Next() {
		rec, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ptrs := make([]*types.MetricRecord, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	childWhere := ""
	if where != "" {
		childWhere = "metric_id IN (SELECT metric_id FROM metrics WHERE " + where + ")"
	}
	if err := s.attachChildren(ctx, ptrs, childWhere, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachChildren(ctx context.Context, recs []*types.MetricRecord, where string, args ...any) error {
	byID := make(map[string]*types.MetricRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	filter := ""
	if where != "" {
		filter = " WHERE " + where
	}

	params, err := s.db.QueryContext(ctx, s.q(`SELECT metric_id, name, value FROM params`+filter+` ORDER BY metric_id, position`), args...)
	if err != nil {
		return fmt.Errorf("query params: %w", err)
	}
	defer params.Close()
	for params.Next() {
		var id string
		var p types.Param
		if err := params.Scan(&id, &p.Name, &p.Value); err != nil {
			return fmt.Errorf("scan param: %w", err)
		}
		if r, ok := byID[id]; ok {
			r.Params = append(r.Params, p)
		}
	}
	if err := params.Err(); err != nil {
		return fmt.Errorf("iterate params: %w", err)
	}

	feats, err := s.db.QueryContext(ctx, s.q(`SELECT metric_id, name, value FROM meta_features`+filter+` ORDER BY metric_id, position`), args...)
	if err != nil {
		return fmt.Errorf("query meta_features: %w", err)
	}
	defer feats.Close()
	for feats.Next() {
		var id string
		var f types.MetaFeature
		if err := feats.Scan(&id, &f.Name, &f.Value); err != nil {
			return fmt.Errorf("scan meta_feature: %w", err)
		}
		if r, ok := byID[id]; ok {
			r.MetaFeatures = append(r.MetaFeatures, f)
		}
	}
	if err := feats.Err(); err != nil {
		return fmt.Errorf("iterate meta_features: %w", err)
	}
	return nil
}

func (s *Store) insertChildren(ctx context.Context, tx *sql.Tx, metricID string, rec *types.MetricRecord) error {
	for i, p := range rec.Params {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO params (param_id, metric_id, position, name, value) VALUES (?, ?, ?, ?, ?)`),
			newUUID(), metricID, i, p.Name, p.Value)
		if err != nil {
			return fmt.Errorf("insert param %q: %w", p.Name, err)
		}
	}
	for i, f := range rec.MetaFeatures {
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO meta_features (feature_id, metric_id, position, name, value) VALUES (?, ?, ?, ?, ?)`),
			newUUID(), metricID, i, f.Name, f.Value)
		if err != nil {
			return fmt.Errorf("insert meta_feature %q: %w", f.Name, err)
		}
	}
	return nil
}

func (s *Store) deleteChildren(ctx context.Context, tx *sql.Tx, metricID string) error {
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM params WHERE metric_id = ?`), metricID); err != nil {
		return fmt.Errorf("delete params: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM meta_features WHERE metric_id = ?`), metricID); err != nil {
		return fmt.Errorf("delete meta_features: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetric(row scanner) (*types.MetricRecord, error) {
	var rec types.MetricRecord
	var created string
	err := row.Scan(&rec.ID, &rec.AlgorithmName, &rec.DatasetHash, &rec.MetricName,
		&rec.MetricValue, &rec.TargetType, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	return &rec, nil
}

// RebindDollar rewrites "?" placeholders as $1, $2, ... for PostgreSQL.
// Question marks inside single-quoted literals are left alone.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
