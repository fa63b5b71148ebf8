// Package jsonl reads and writes metric records as JSON Lines, one record per
// line, for export and import.
package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// maxLine bounds a single record line.
const maxLine = 4 << 20

// Source lists the records to export.
type Source interface {
	QueryAll(ctx context.Context) ([]types.MetricRecord, error)
}

// Decode reads records from r. Blank and malformed lines are skipped and
// counted.
func Decode(r io.Reader) ([]types.MetricRecord, int, error) {
	var records []types.MetricRecord
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.MetricRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning records: %w", err)
	}
	return records, skipped, nil
}

// Encode writes one JSON object per record.
func Encode(w io.Writer, records []types.MetricRecord) error {
	bw := bufio.NewWriter(w)
	for i := range records {
		b, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", records[i].ID, err)
		}
		if _, err := bw.Write(b); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	return nil
}

// ReadFile decodes the records in path.
func ReadFile(path string) ([]types.MetricRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile atomically replaces path with the records using the temp-file,
// fsync, rename pattern.
func WriteFile(path string, records []types.MetricRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Export writes every record in src to path and returns the count.
func Export(ctx context.Context, src Source, path string) (int, error) {
	records, err := src.QueryAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("query records: %w", err)
	}
	if err := WriteFile(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportResult summarizes an Import.
type ImportResult struct {
	Read    int `json:"read"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// Import loads the records in path into dst in one transaction.
func Import(ctx context.Context, dst types.Loader, path string) (ImportResult, error) {
	records, skipped, err := ReadFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	loaded, err := dst.Load(ctx, records)
	if err != nil {
		return ImportResult{}, fmt.Errorf("load records: %w", err)
	}
	return ImportResult{Read: len(records), Loaded: loaded, Skipped: skipped}, nil
}
