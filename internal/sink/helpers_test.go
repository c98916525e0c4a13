package sink

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testBatch() backend.Batch {
	return backend.Batch{
		Namespace: "App",
		Items: []backend.Datum{
			{
				MetricName: "requests",
				Unit:       backend.UnitCount,
				Timestamp:  testTime,
				Value:      12,
				Dimensions: []backend.Dimension{{Name: "env", Value: "prod"}},
			},
			{
				MetricName: "latency",
				Unit:       backend.UnitMilliseconds,
				Timestamp:  testTime,
				Statistics: &backend.StatisticSet{Minimum: 1, Maximum: 9, Sum: 15, SampleCount: 3},
			},
		},
	}
}
