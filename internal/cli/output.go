package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRecords writes records as JSON or as one summary line each.
func printRecords(w io.Writer, jsonMode bool, records []types.MetricRecord) error {
	if jsonMode {
		return printJSON(w, records)
	}
	for i := range records {
		fmt.Fprintln(w, recordLine(&records[i]))
	}
	return nil
}

func recordLine(r *types.MetricRecord) string {
	line := fmt.Sprintf("%s  %s  %s=%g  %s  %s", r.ID, r.DatasetHash, r.MetricName, r.MetricValue, r.AlgorithmName, r.TargetType)
	if len(r.Params) > 0 {
		parts := make([]string, len(r.Params))
		for i, p := range r.Params {
			parts[i] = p.Name + "=" + p.Value
		}
		line += "  " + strings.Join(parts, ",")
	}
	return line
}

// printSoft writes a soft response the way the HTTP API shapes it.
func printSoft(w io.Writer, jsonMode bool, msg string) error {
	if jsonMode {
		return printJSON(w, map[string]string{"response": msg})
	}
	_, err := fmt.Fprintln(w, msg)
	return err
}
