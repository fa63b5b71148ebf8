package metalearn

import (
	"fmt"

	"github.com/mesh-intelligence/fmlearn/internal/encoder"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

// TrainingTable is the flattened view of every stored record used for one
// training pass. Row i of Rows belongs to Records[i].
type TrainingTable struct {
	Schema  *encoder.Schema
	Records []types.MetricRecord
	Rows    [][]float64
}

// BuildTrainingTable fits the target-type encoder over records and pivots
// their meta-features into the schema's columns.
func BuildTrainingTable(records []types.MetricRecord, version int64) (*TrainingTable, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}

	targetTypes := make([]string, len(records))
	var names []string
	for i := range records {
		targetTypes[i] = records[i].TargetType
		for _, f := range records[i].MetaFeatures {
			names = append(names, f.Name)
		}
	}

	enc, err := encoder.Fit(encoder.TargetTypeField, targetTypes)
	if err != nil {
		return nil, fmt.Errorf("fit encoder: %w", err)
	}
	schema := encoder.NewSchema(version, names, enc)

	rows := make([][]float64, len(records))
	for i := range records {
		rows[i] = schema.TrainingRow(&records[i])
	}
	return &TrainingTable{Schema: schema, Records: records, Rows: rows}, nil
}
