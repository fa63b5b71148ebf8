package metalearn

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Candidate is a historical record judged similar to a query.
type Candidate struct {
	RecordID      string  `json:"id"`
	AlgorithmName string  `json:"algorithm_name"`
	DatasetHash   string  `json:"dataset_hash"`
	MetricName    string  `json:"metric_name"`
	MetricValue   float64 `json:"metric_value"`
	TargetType    string  `json:"target_type"`
	Distance      float64 `json:"distance"`
}

// neighbors is a k-nearest-neighbour retrieval model over z-score
// standardized rows.
type neighbors struct {
	k      int
	means  []float64
	scales []float64
	data   *mat.Dense
	rows   []Candidate
}

func fitNeighbors(t *TrainingTable, k int) *neighbors {
	n, width := len(t.Rows), t.Schema.Width()
	raw := mat.NewDense(n, width, nil)
	for i, r := range t.Rows {
		raw.SetRow(i, r)
	}

	means := make([]float64, width)
	scales := make([]float64, width)
	col := make([]float64, n)
	for j := 0; j < width; j++ {
		mat.Col(col, j, raw)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j], scales[j] = mean, std
	}

	data := mat.NewDense(n, width, nil)
	for i := 0; i < n; i++ {
		data.SetRow(i, standardize(raw.RawRowView(i), means, scales))
	}

	rows := make([]Candidate, n)
	for i := range t.Records {
		r := &t.Records[i]
		rows[i] = Candidate{
			RecordID:      r.ID,
			AlgorithmName: r.AlgorithmName,
			DatasetHash:   r.DatasetHash,
			MetricName:    r.MetricName,
			MetricValue:   r.MetricValue,
			TargetType:    r.TargetType,
		}
	}

	if k <= 0 || k > n {
		k = n
	}
	return &neighbors{k: k, means: means, scales: scales, data: data, rows: rows}
}

// predict returns the k nearest rows by Euclidean distance, closest first.
// Ties keep training order.
func (m *neighbors) predict(query []float64) []Candidate {
	q := standardize(query, m.means, m.scales)
	n, _ := m.data.Dims()

	order := make([]int, n)
	dist := make([]float64, n)
	for i := 0; i < n; i++ {
		order[i] = i
		dist[i] = floats.Distance(q, m.data.RawRowView(i), 2)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dist[order[a]] < dist[order[b]]
	})

	out := make([]Candidate, m.k)
	for i := 0; i < m.k; i++ {
		c := m.rows[order[i]]
		c.Distance = dist[order[i]]
		out[i] = c
	}
	return out
}

func standardize(row, means, scales []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	floats.Sub(out, means)
	floats.Div(out, scales)
	return out
}
