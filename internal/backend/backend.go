// Package backend turns statsd flush snapshots into CloudWatch data points
// and ships them to an ingestion sink.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

// State is the lifecycle state of a Backend.
type State int32

const (
	// StateUninitialized is the state between New and Init.
	StateUninitialized State = iota
	// StateReady means the sink client was built successfully.
	StateReady
	// StateFailed means Init failed. Flushes are still processed, but
	// submissions are expected to fail individually.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyInitialized is returned when Init is called more than once.
var ErrAlreadyInitialized = errors.New("backend already initialized")

// SubmitterFactory builds the sink client during Init. It may return a
// usable Submitter together with an error when the sink is degraded, for
// example when credentials could not be fetched.
type SubmitterFactory func(ctx context.Context) (Submitter, error)

// Backend is one export instance. It holds no state between flushes other
// than its configuration and sink client.
type Backend struct {
	log     logrus.FieldLogger
	name    string
	cfg     Config
	factory SubmitterFactory
	health  *export.HealthMetrics

	resolver   Resolver
	aliases    AliasTable
	filter     Filter
	dimensions []Dimension

	state     atomic.Int32
	batcher   atomic.Pointer[Batcher]
	submitter Submitter
	cancel    context.CancelFunc
}

// shutdowner is implemented by submitters holding resources that must be
// released after the last submission.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Ensure Backend implements statsd.Flusher.
var _ statsd.Flusher = (*Backend)(nil)

// New creates an uninitialized Backend. Init must complete before flushes
// are exported.
func New(
	log logrus.FieldLogger,
	name string,
	cfg Config,
	factory SubmitterFactory,
	health *export.HealthMetrics,
) *Backend {
	b := &Backend{
		log:        log.WithFields(logrus.Fields{"component": "backend", "instance": name}),
		name:       name,
		cfg:        cfg,
		factory:    factory,
		health:     health,
		resolver:   NewResolver(cfg),
		aliases:    NewAliasTable(cfg.Alias),
		filter:     NewFilter(cfg),
		dimensions: BuildDimensions(cfg.Dimensions),
	}

	b.setState(StateUninitialized)

	return b
}

// Name returns the instance name.
func (b *Backend) Name() string {
	return b.name
}

// State returns the current lifecycle state.
func (b *Backend) State() State {
	return State(b.state.Load())
}

func (b *Backend) setState(s State) {
	b.state.Store(int32(s))

	if b.health != nil {
		b.health.InstanceState.WithLabelValues(b.name).Set(float64(s))
	}
}

// Init builds the sink client. On failure the instance moves to
// StateFailed but keeps accepting flushes so that every later submission
// surfaces the problem in the logs.
func (b *Backend) Init(ctx context.Context) error {
	if b.batcher.Load() != nil {
		return ErrAlreadyInitialized
	}

	submitter, err := b.factory(ctx)

	// Submissions must not be cancelled when the init context is.
	submitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel

	if err != nil {
		if submitter == nil {
			submitter = unavailableSubmitter{err: err}
		}

		b.submitter = submitter

		b.batcher.Store(NewBatcher(submitCtx, b.log, b.name, submitter, b.health))
		b.setState(StateFailed)

		b.log.WithError(err).Error("Instance initialization failed, continuing in degraded mode")

		return fmt.Errorf("initializing instance %s: %w", b.name, err)
	}

	b.submitter = submitter
	b.batcher.Store(NewBatcher(submitCtx, b.log, b.name, submitter, b.health))
	b.setState(StateReady)

	b.log.WithFields(logrus.Fields{
		"sink":        submitter.Name(),
		"aliases":     b.aliases.Len(),
		"dimensions":  len(b.dimensions),
		"split_keys":  b.cfg.ProcessKeyForNamespace,
		"legacy_ns":   b.cfg.LegacyGroupNamespace,
		"whitelisted": len(b.cfg.Whitelist),
		"blacklisted": len(b.cfg.Blacklist),
	}).Info("Instance ready")

	return nil
}

// Stop waits for in-flight submissions until ctx is done, cancels any that
// remain and releases the sink client.
func (b *Backend) Stop(ctx context.Context) error {
	batcher := b.batcher.Load()
	if batcher == nil {
		return nil
	}

	done := make(chan struct{})

	go func() {
		batcher.Wait()
		close(done)
	}()

	var err error

	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for in-flight submissions: %w", ctx.Err())
	}

	if b.cancel != nil {
		b.cancel()
	}

	if s, ok := b.submitter.(shutdowner); ok {
		if serr := s.Shutdown(ctx); serr != nil && err == nil {
			err = fmt.Errorf("shutting down sink %s: %w", b.submitter.Name(), serr)
		}
	}

	return err
}

// unavailableSubmitter stands in for a sink whose client could not be
// built at all.
type unavailableSubmitter struct {
	err error
}

func (u unavailableSubmitter) Name() string {
	return "unavailable"
}

func (u unavailableSubmitter) Submit(_ context.Context, _ Batch) error {
	return fmt.Errorf("sink unavailable: %w", u.err)
}
