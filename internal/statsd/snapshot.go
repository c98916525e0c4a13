// Package statsd holds the metric snapshot handed over by the collection
// daemon on every flush interval.
package statsd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Snapshot is a point-in-time bundle of aggregated metrics for one flush.
// It is owned by the caller and must be treated as read-only.
type Snapshot struct {
	Counters map[string]float64   `json:"counters"`
	Gauges   map[string]float64   `json:"gauges"`
	Timers   map[string][]float64 `json:"timers"`
	Sets     map[string]Set       `json:"sets"`
}

// Empty reports whether the snapshot carries no metrics at all.
func (s Snapshot) Empty() bool {
	return len(s.Counters) == 0 &&
		len(s.Gauges) == 0 &&
		len(s.Timers) == 0 &&
		len(s.Sets) == 0
}

// Len returns the total number of keys across all four groups.
func (s Snapshot) Len() int {
	return len(s.Counters) + len(s.Gauges) + len(s.Timers) + len(s.Sets)
}

// FlushEvent is one tick of the collection daemon.
type FlushEvent struct {
	// Timestamp is the flush time in epoch seconds.
	Timestamp int64    `json:"timestamp"`
	Snapshot  Snapshot `json:"metrics"`
}

// Flusher consumes flush events. It is implemented by every export backend
// and called once per reporting interval.
type Flusher interface {
	Flush(timestamp int64, snapshot Snapshot)
}

// Set is the collection of members observed for a set metric during one
// interval. Members may repeat in the input; Cardinality counts them once.
type Set []string

// Cardinality returns the number of distinct members.
func (s Set) Cardinality() int {
	if len(s) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(s))
	for _, m := range s {
		seen[m] = struct{}{}
	}

	return len(seen)
}

// UnmarshalJSON accepts a JSON array of strings or numbers, or an object
// whose keys are the members (the shape statsd uses for its internal sets).
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		members := make(Set, 0, len(raw))

		for _, r := range raw {
			m, err := decodeMember(r)
			if err != nil {
				return err
			}

			members = append(members, m)
		}

		*s = members

		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("set must be an array or object: %w", err)
	}

	members := make(Set, 0, len(obj))
	for k := range obj {
		members = append(members, k)
	}

	sort.Strings(members)
	*s = members

	return nil
}

func decodeMember(r json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(r, &str); err == nil {
		return str, nil
	}

	var num json.Number
	if err := json.Unmarshal(r, &num); err == nil {
		return num.String(), nil
	}

	var b bool
	if err := json.Unmarshal(r, &b); err == nil {
		return strconv.FormatBool(b), nil
	}

	return "", fmt.Errorf("unsupported set member %s", string(r))
}
