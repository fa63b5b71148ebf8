package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"sequential", "WHERE a = ? AND b = ?", "WHERE a = $1 AND b = $2"},
		{"quoted literal untouched", "WHERE a = '?' AND b = ?", "WHERE a = '?' AND b = $1"},
		{"insert", "VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RebindDollar(tt.in))
		})
	}
}
