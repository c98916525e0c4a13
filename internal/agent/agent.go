package agent

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	"github.com/ethpandaops/statsd-cloudwatch/internal/ingest"
	"github.com/ethpandaops/statsd-cloudwatch/internal/sink"
	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

// Agent is the top-level orchestrator for statsd-cloudwatch.
type Agent interface {
	// Start initializes all instances and begins accepting flushes.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
}

type agent struct {
	log      logrus.FieldLogger
	cfg      *Config
	health   *export.HealthMetrics
	backends []*backend.Backend
	ingest   *ingest.Server
}

// New creates a new Agent.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	return newAgent(log, cfg)
}

func newAgent(log logrus.FieldLogger, cfg *Config) (*agent, error) {
	if len(cfg.CloudWatch.Instances) == 0 {
		return nil, fmt.Errorf("no instances configured")
	}

	health := export.NewHealthMetrics(log, cfg.Health)

	a := &agent{
		log:      log.WithField("component", "agent"),
		cfg:      cfg,
		health:   health,
		backends: make([]*backend.Backend, 0, len(cfg.CloudWatch.Instances)),
	}

	names := cfg.CloudWatch.InstanceNames()
	flushers := make([]statsd.Flusher, 0, len(names))

	for i, inst := range cfg.CloudWatch.Instances {
		factory := sink.NewFactory(log, names[i], inst.Sink, inst.CloudWatch, health)
		b := backend.New(log, names[i], inst.Backend, factory, health)

		a.backends = append(a.backends, b)
		flushers = append(flushers, b)
	}

	a.ingest = ingest.NewServer(log, cfg.Ingest, health, flushers...)

	return a, nil
}

func (a *agent) Start(ctx context.Context) error {
	// 1. Start health metrics server.
	a.health.SetReadyFunc(a.ready)

	if err := a.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Initialize instances. A failed instance stays up in degraded
	// mode, so errors are logged and startup continues.
	for _, b := range a.backends {
		if err := b.Init(ctx); err != nil {
			a.log.WithError(err).WithField("instance", b.Name()).
				Warn("Instance started degraded")

			continue
		}

		a.log.WithField("instance", b.Name()).Info("Instance initialized")
	}

	// 3. Accept flush events.
	if err := a.ingest.Start(ctx); err != nil {
		return fmt.Errorf("starting ingest server: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"instances": len(a.backends),
		"ingest":    a.ingest.Addr(),
	}).Info("Agent started")

	return nil
}

// ready reports whether every instance has left the uninitialized state.
func (a *agent) ready() bool {
	for _, b := range a.backends {
		if b.State() == backend.StateUninitialized {
			return false
		}
	}

	return true
}

func (a *agent) Stop() error {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error

	// Stop in reverse order.
	if err := a.ingest.Stop(ctx); err != nil {
		a.log.WithError(err).Warn("Error stopping ingest server")

		firstErr = err
	}

	for _, b := range a.backends {
		if err := b.Stop(ctx); err != nil {
			a.log.WithError(err).WithField("instance", b.Name()).
				Warn("Error stopping instance")

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := a.health.Stop(); err != nil {
		a.log.WithError(err).Warn("Error stopping health server")
	}

	return firstErr
}
