package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
)

const clickHouseInsert = `INSERT INTO %s (
	submitted_date_time, timestamp, instance, namespace, metric_name, unit,
	value, minimum, maximum, sum, sample_count,
	dimension_names, dimension_values
)`

// ClickHouse writes every batch as rows of the cloudwatch_datapoints table.
type ClickHouse struct {
	log      logrus.FieldLogger
	instance string
	writer   *export.ClickHouseWriter
	health   *export.HealthMetrics
}

var _ backend.Submitter = (*ClickHouse)(nil)

// NewClickHouse creates a ClickHouse sink over a started writer.
func NewClickHouse(
	log logrus.FieldLogger,
	instance string,
	writer *export.ClickHouseWriter,
	health *export.HealthMetrics,
) *ClickHouse {
	return &ClickHouse{
		log:      log.WithField("sink", TypeClickHouse),
		instance: instance,
		writer:   writer,
		health:   health,
	}
}

// Name returns the sink identifier.
func (c *ClickHouse) Name() string {
	return TypeClickHouse
}

// Submit inserts the batch in one ClickHouse block.
func (c *ClickHouse) Submit(ctx context.Context, batch backend.Batch) error {
	if len(batch.Items) == 0 {
		return nil
	}

	conn := c.writer.Conn()
	if conn == nil {
		return fmt.Errorf("clickhouse connection not established")
	}

	cfg := c.writer.Config()

	b, err := conn.PrepareBatch(ctx, fmt.Sprintf(clickHouseInsert, cfg.QualifiedTable()))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}

	now := time.Now().UTC()

	for _, row := range toRows(batch) {
		if err := b.Append(
			now, row.timestamp, c.instance, batch.Namespace, row.metricName, row.unit,
			row.value, row.minimum, row.maximum, row.sum, row.sampleCount,
			row.dimensionNames, row.dimensionValues,
		); err != nil {
			_ = b.Abort()

			return fmt.Errorf("appending row: %w", err)
		}
	}

	if err := b.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"namespace": batch.Namespace,
		"rows":      len(batch.Items),
	}).Debug("Inserted data points")

	return nil
}

// Shutdown closes the connection.
func (c *ClickHouse) Shutdown(_ context.Context) error {
	if c.health != nil {
		c.health.ClickHouseConnected.WithLabelValues(c.instance).Set(0)
	}

	return c.writer.Stop()
}

// clickHouseRow is one data point in column order.
type clickHouseRow struct {
	timestamp       time.Time
	metricName      string
	unit            string
	value           float64
	minimum         *float64
	maximum         *float64
	sum             *float64
	sampleCount     *float64
	dimensionNames  []string
	dimensionValues []string
}

func toRows(batch backend.Batch) []clickHouseRow {
	rows := make([]clickHouseRow, 0, len(batch.Items))

	for _, d := range batch.Items {
		row := clickHouseRow{
			timestamp:       d.Timestamp,
			metricName:      d.MetricName,
			unit:            string(d.Unit),
			value:           d.Value,
			dimensionNames:  make([]string, 0, len(d.Dimensions)),
			dimensionValues: make([]string, 0, len(d.Dimensions)),
		}

		if s := d.Statistics; s != nil {
			row.minimum = &s.Minimum
			row.maximum = &s.Maximum
			row.sum = &s.Sum
			row.sampleCount = &s.SampleCount
		}

		for _, dim := range d.Dimensions {
			row.dimensionNames = append(row.dimensionNames, dim.Name)
			row.dimensionValues = append(row.dimensionValues, dim.Value)
		}

		rows = append(rows, row)
	}

	return rows
}
