package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasTable_Apply(t *testing.T) {
	table := NewAliasTable(OrderedMap{
		{Key: "test.metric1", Value: "CloudMetric"},
		{Key: "metric", Value: "Generic"},
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "exact match", in: "test.metric1", want: "CloudMetric"},
		{name: "suffix match replaces whole name", in: "hostname1.test.metric1", want: "CloudMetric"},
		{name: "first declared rule wins", in: "test.metric1.extra", want: "CloudMetric"},
		{name: "later rule", in: "other.metric2", want: "Generic"},
		{name: "no match", in: "requests", want: "requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Apply(tt.in))
		})
	}
}

func TestAliasTable_Empty(t *testing.T) {
	table := NewAliasTable(nil)

	assert.Equal(t, "test.metric1", table.Apply("test.metric1"))
	assert.Equal(t, 0, table.Len())
}
