package backend

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// recordingSubmitter captures every batch it receives.
type recordingSubmitter struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (r *recordingSubmitter) Name() string { return "recording" }

func (r *recordingSubmitter) Submit(_ context.Context, batch Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, batch)

	return r.err
}

// Batches returns the received batches ordered by namespace, then first
// metric name, so assertions do not depend on goroutine scheduling.
func (r *recordingSubmitter) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Batch, len(r.batches))
	copy(out, r.batches)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}

		return out[i].Items[0].MetricName < out[j].Items[0].MetricName
	})

	return out
}

func (r *recordingSubmitter) Items() []Datum {
	var items []Datum
	for _, b := range r.Batches() {
		items = append(items, b.Items...)
	}

	return items
}

func newTestBackend(t *testing.T, cfg Config) (*Backend, *recordingSubmitter) {
	t.Helper()

	rec := &recordingSubmitter{}
	b := New(testLog(), "test", cfg, func(context.Context) (Submitter, error) {
		return rec, nil
	}, nil)

	require.NoError(t, b.Init(context.Background()))

	return b, rec
}

func flushAndWait(t *testing.T, b *Backend, ts int64, snap statsd.Snapshot) {
	t.Helper()

	b.Flush(ts, snap)
	require.NoError(t, b.Stop(context.Background()))
}
