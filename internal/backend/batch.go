package backend

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
)

// MaxBatchItems is the per-request item ceiling of the ingestion API.
const MaxBatchItems = 20

// Batch is a single submission to the ingestion sink.
type Batch struct {
	Namespace string
	Items     []Datum
}

// Submitter sends one batch to the ingestion sink.
type Submitter interface {
	// Name returns the sink's identifier for logging and metrics.
	Name() string
	// Submit sends the batch. Implementations must be safe for
	// concurrent use.
	Submit(ctx context.Context, batch Batch) error
}

// Chunk splits items into consecutive slices of at most size elements.
// The returned slices share the backing array of items.
func Chunk(items []Datum, size int) [][]Datum {
	if len(items) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]Datum, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}

	return chunks
}

// Batcher ships data points in size-bounded requests. Each request is
// submitted on its own goroutine and its outcome is only logged; Send never
// waits for a response.
type Batcher struct {
	log       logrus.FieldLogger
	instance  string
	submitter Submitter
	health    *export.HealthMetrics
	size      int

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBatcher creates a Batcher. ctx bounds every submission it issues.
func NewBatcher(
	ctx context.Context,
	log logrus.FieldLogger,
	instance string,
	submitter Submitter,
	health *export.HealthMetrics,
) *Batcher {
	return &Batcher{
		log:       log.WithField("sink", submitter.Name()),
		instance:  instance,
		submitter: submitter,
		health:    health,
		size:      MaxBatchItems,
		ctx:       ctx,
	}
}

// Send submits items under namespace in chunks of at most MaxBatchItems,
// in order. It returns the number of submissions issued.
func (b *Batcher) Send(namespace string, items []Datum) int {
	chunks := Chunk(items, b.size)

	for _, chunk := range chunks {
		batch := Batch{Namespace: namespace, Items: chunk}

		b.wg.Add(1)

		if b.health != nil {
			b.health.SubmitsInflight.WithLabelValues(b.instance).Inc()
		}

		go b.submit(batch)
	}

	return len(chunks)
}

func (b *Batcher) submit(batch Batch) {
	defer b.wg.Done()

	start := time.Now()
	err := b.submitter.Submit(b.ctx, batch)
	elapsed := time.Since(start)

	log := b.log.WithFields(logrus.Fields{
		"namespace": batch.Namespace,
		"items":     len(batch.Items),
		"duration":  elapsed,
	})

	status := "success"
	if err != nil {
		status = "error"

		log.WithError(err).Error("Failed to submit metric batch")
	} else {
		log.Debug("Submitted metric batch")
	}

	if b.health != nil {
		sinkName := b.submitter.Name()

		b.health.SubmitsInflight.WithLabelValues(b.instance).Dec()
		b.health.SubmitsTotal.WithLabelValues(b.instance, sinkName, status).Inc()
		b.health.SubmitDuration.WithLabelValues(b.instance, sinkName).Observe(elapsed.Seconds())
		b.health.SubmitBatchSize.WithLabelValues(b.instance, sinkName).Observe(float64(len(batch.Items)))
	}
}

// Wait blocks until every submission issued so far has completed.
func (b *Batcher) Wait() {
	b.wg.Wait()
}
