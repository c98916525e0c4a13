// Package sink implements the destinations an instance submits data point
// batches to: CloudWatch, and HTTP or ClickHouse mirrors.
package sink

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
)

// NewFactory returns the factory that builds the configured sink when the
// instance initializes.
func NewFactory(
	log logrus.FieldLogger,
	instance string,
	cfg Config,
	cw CloudWatchConfig,
	health *export.HealthMetrics,
) backend.SubmitterFactory {
	cfg.ApplyDefaults()

	return func(ctx context.Context) (backend.Submitter, error) {
		switch cfg.Type {
		case TypeCloudWatch:
			return newCloudWatchSubmitter(ctx, log, cw)
		case TypeHTTP:
			h, err := NewHTTP(log, cfg.HTTP, instance)
			if err != nil {
				return nil, err
			}

			// The processor outlives the init context; Shutdown stops it.
			h.Start(context.WithoutCancel(ctx))

			return h, nil
		case TypeClickHouse:
			writer := export.NewClickHouseWriter(log, cfg.ClickHouse)
			if err := writer.Start(ctx); err != nil {
				return nil, fmt.Errorf("starting clickhouse writer: %w", err)
			}

			if health != nil {
				health.ClickHouseConnected.WithLabelValues(instance).Set(1)
			}

			return NewClickHouse(log, instance, writer, health), nil
		default:
			return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
		}
	}
}
