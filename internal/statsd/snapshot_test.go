package statsd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Empty(t *testing.T) {
	assert.True(t, Snapshot{}.Empty())
	assert.True(t, Snapshot{Counters: map[string]float64{}}.Empty())
	assert.False(t, Snapshot{Gauges: map[string]float64{"g": 1}}.Empty())
}

func TestSnapshot_Len(t *testing.T) {
	s := Snapshot{
		Counters: map[string]float64{"a": 1, "b": 2},
		Timers:   map[string][]float64{"t": {1}},
		Sets:     map[string]Set{"s": {"x"}},
	}

	assert.Equal(t, 4, s.Len())
}

func TestSet_Cardinality(t *testing.T) {
	tests := []struct {
		name string
		set  Set
		want int
	}{
		{name: "nil", set: nil, want: 0},
		{name: "distinct", set: Set{"a", "b", "c"}, want: 3},
		{name: "repeated", set: Set{"a", "b", "a", "a"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Cardinality())
		})
	}
}

func TestDecodeFlushEvent(t *testing.T) {
	body := `{
		"timestamp": 1500000000,
		"metrics": {
			"counters": {"test.metric1": 5, "statsd.packets_received": 1},
			"gauges": {"mem.free": 1024.5},
			"timers": {"api.latency": [5, 2, 5, 4, 3]},
			"sets": {"users": ["u1", "u2", "u1"], "ids": [1, 2, 3]},
			"unknown": {"ignored": true}
		}
	}`

	ev, err := DecodeFlushEvent(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, int64(1500000000), ev.Timestamp)
	assert.Equal(t, 5.0, ev.Snapshot.Counters["test.metric1"])
	assert.Equal(t, 1024.5, ev.Snapshot.Gauges["mem.free"])
	assert.Equal(t, []float64{5, 2, 5, 4, 3}, ev.Snapshot.Timers["api.latency"])
	assert.Equal(t, 2, ev.Snapshot.Sets["users"].Cardinality())
	assert.Equal(t, Set{"1", "2", "3"}, ev.Snapshot.Sets["ids"])
}

func TestDecodeFlushEvent_SetObject(t *testing.T) {
	body := `{"timestamp": 1, "metrics": {"sets": {"users": {"b": "b", "a": "a"}}}}`

	ev, err := DecodeFlushEventBytes([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, Set{"a", "b"}, ev.Snapshot.Sets["users"])
}

func TestDecodeFlushEvent_Invalid(t *testing.T) {
	_, err := DecodeFlushEvent(strings.NewReader("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding flush event")

	_, err = DecodeFlushEvent(strings.NewReader(`{"metrics": {}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp must be positive")

	_, err = DecodeFlushEvent(strings.NewReader(`{"timestamp": 1, "metrics": {"sets": {"s": 5}}}`))
	require.Error(t, err)
}
