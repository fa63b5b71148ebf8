package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

func newIngestCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file]",
		Short: "Store metric records",
		Long: `Store one metric record (a JSON object) or many (a JSON array).
Reads from file, or from stdin when file is omitted or "-".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			records, err := readRecords(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			stored := make([]types.MetricRecord, 0, len(records))
			for i := range records {
				rec, ierr := a.svc.Ingest(cmd.Context(), &records[i])
				if ierr != nil {
					return userError("record %d: %w", i+1, ierr)
				}
				stored = append(stored, *rec)
			}

			out := cmd.OutOrStdout()
			if flags.jsonMode {
				return printJSON(out, stored)
			}
			for _, r := range stored {
				fmt.Fprintln(out, r.ID)
			}
			return nil
		},
	}
}

// readRecords decodes a JSON object or array of metric records.
func readRecords(stdin io.Reader, path string) ([]types.MetricRecord, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, userError("read input: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, userError("no records in input")
	}
	if data[0] == '[' {
		var records []types.MetricRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, userError("parse records: %w", err)
		}
		if len(records) == 0 {
			return nil, userError("no records in input")
		}
		return records, nil
	}
	var rec types.MetricRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, userError("parse record: %w", err)
	}
	return []types.MetricRecord{rec}, nil
}
