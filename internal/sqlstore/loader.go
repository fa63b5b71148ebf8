package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// Load inserts exported records in one transaction: all succeed or none are
// stored. IDs and creation times are preserved; a missing ID is generated and
// a record whose ID already exists is skipped. Returns the number inserted.
func (s *Store) Load(ctx context.Context, records []types.MetricRecord) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := tx.PrepareContext(ctx, s.q(`SELECT COUNT(*) FROM metrics WHERE metric_id = ?`))
		if err != nil {
			return fmt.Errorf("prepare existence check: %w", err)
		}
		defer exists.Close()

		for i := range records {
			rec := &records[i]
			rec.Normalize()
			if err := rec.Validate(); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if rec.ID == "" {
				rec.ID = newUUID()
			}
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = time.Now().UTC()
			}

			var n int
			if err := exists.QueryRowContext(ctx, rec.ID).Scan(&n); err != nil {
				return fmt.Errorf("check %s: %w", rec.ID, err)
			}
			if n > 0 {
				continue
			}

			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO metrics (`+metricColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				rec.ID, rec.AlgorithmName, rec.DatasetHash, rec.MetricName, rec.MetricValue, rec.TargetType,
				rec.CreatedAt.UTC().Format(timeLayout))
			if err != nil {
				return fmt.Errorf("load %s: %w", rec.ID, err)
			}
			if err := s.insertChildren(ctx, tx, rec.ID, rec); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
