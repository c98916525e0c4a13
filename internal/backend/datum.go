package backend

import (
	"sort"
	"time"
)

// Unit is the unit reported with a data point.
type Unit string

// Units used by the datum builder.
const (
	UnitCount        Unit = "Count"
	UnitNone         Unit = "None"
	UnitMilliseconds Unit = "Milliseconds"
)

// StatisticSet summarises timer observations.
type StatisticSet struct {
	Minimum     float64 `json:"minimum"`
	Maximum     float64 `json:"maximum"`
	Sum         float64 `json:"sum"`
	SampleCount float64 `json:"sample_count"`
}

// Datum is one ingestion-ready data point. Exactly one of Value and
// Statistics is meaningful: Statistics is set for timers only.
type Datum struct {
	MetricName string        `json:"metric_name"`
	Unit       Unit          `json:"unit"`
	Timestamp  time.Time     `json:"timestamp"`
	Value      float64       `json:"value"`
	Statistics *StatisticSet `json:"statistics,omitempty"`
	Dimensions []Dimension   `json:"dimensions,omitempty"`
}

// TimerSummary is the full statistical summary of a timer.
type TimerSummary struct {
	Min   float64
	Max   float64
	Sum   float64
	Count int
	Mean  float64
}

// Statistics returns the subset of the summary placed on a data point.
func (s TimerSummary) Statistics() *StatisticSet {
	return &StatisticSet{
		Minimum:     s.Min,
		Maximum:     s.Max,
		Sum:         s.Sum,
		SampleCount: float64(s.Count),
	}
}

// SummarizeTimer computes statistics over observations. It returns false
// for an empty list. The input slice is not modified.
func SummarizeTimer(observations []float64) (TimerSummary, bool) {
	if len(observations) == 0 {
		return TimerSummary{}, false
	}

	values := make([]float64, len(observations))
	copy(values, observations)
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}

	count := len(values)

	return TimerSummary{
		Min:   values[0],
		Max:   values[count-1],
		Sum:   sum,
		Count: count,
		Mean:  sum / float64(count),
	}, true
}

// FlushTime converts a flush timestamp in epoch seconds to the time stamped
// on every data point of that flush.
func FlushTime(timestamp int64) time.Time {
	return time.Unix(timestamp, 0).UTC()
}

// FormatTimestamp renders t as ISO-8601 with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// datumBuilder stamps the per-flush fields onto data points.
type datumBuilder struct {
	timestamp  time.Time
	dimensions []Dimension
}

func (b datumBuilder) counter(name string, value float64) Datum {
	return b.scalar(name, UnitCount, value)
}

func (b datumBuilder) gauge(name string, value float64) Datum {
	return b.scalar(name, UnitNone, value)
}

func (b datumBuilder) set(name string, cardinality int) Datum {
	return b.scalar(name, UnitNone, float64(cardinality))
}

func (b datumBuilder) timer(name string, summary TimerSummary) Datum {
	return Datum{
		MetricName: name,
		Unit:       UnitMilliseconds,
		Timestamp:  b.timestamp,
		Statistics: summary.Statistics(),
		Dimensions: b.dimensions,
	}
}

func (b datumBuilder) scalar(name string, unit Unit, value float64) Datum {
	return Datum{
		MetricName: name,
		Unit:       unit,
		Timestamp:  b.timestamp,
		Value:      value,
		Dimensions: b.dimensions,
	}
}
