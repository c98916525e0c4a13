package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

const testTimestamp = int64(1500000000)

func TestFlush_EmptySnapshot(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{})

	assert.Empty(t, rec.Batches())
}

func TestFlush_EmptySnapshotSkipsWork(t *testing.T) {
	health := export.NewHealthMetrics(testLog(), export.HealthConfig{})
	rec := &recordingSubmitter{}
	b := New(testLog(), "test", Config{}, func(context.Context) (Submitter, error) {
		return rec, nil
	}, health)

	require.NoError(t, b.Init(context.Background()))

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{Counters: map[string]float64{}})

	assert.Empty(t, rec.Batches())
	assert.Equal(t, 1.0, testutil.ToFloat64(health.FlushesTotal.WithLabelValues("test")))
	assert.Equal(t, 0, testutil.CollectAndCount(health.FlushDuration))
}

func TestFlush_ReservedCounters(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"statsd.packets_received": 1},
	})

	assert.Empty(t, rec.Batches())
}

func TestFlush_Counter(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"test.metric1": 5},
	})

	batches := rec.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Items, 1)

	d := batches[0].Items[0]
	assert.Equal(t, DefaultNamespace, batches[0].Namespace)
	assert.Equal(t, "test.metric1", d.MetricName)
	assert.Equal(t, UnitCount, d.Unit)
	assert.Equal(t, 5.0, d.Value)
	assert.Equal(t, "2017-07-14T02:40:00.000Z", FormatTimestamp(d.Timestamp))
	assert.Nil(t, d.Dimensions)
}

func TestFlush_AliasNotMatching(t *testing.T) {
	b, rec := newTestBackend(t, Config{
		Alias: OrderedMap{{Key: "test.metric2", Value: "CloudMetric"}},
	})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"test.metric1": 5},
	})

	items := rec.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "test.metric1", items[0].MetricName)
}

func TestFlush_AliasSuffixMatch(t *testing.T) {
	b, rec := newTestBackend(t, Config{
		Alias: OrderedMap{{Key: "test.metric1", Value: "CloudMetric"}},
	})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"hostname1.test.metric1": 5},
	})

	items := rec.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "CloudMetric", items[0].MetricName)
}

func TestFlush_Timer(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Timers: map[string][]float64{
			"m":     {5, 2, 5, 4, 3},
			"empty": {},
		},
	})

	items := rec.Items()
	require.Len(t, items, 1)

	d := items[0]
	assert.Equal(t, "m", d.MetricName)
	assert.Equal(t, UnitMilliseconds, d.Unit)
	assert.Equal(t, &StatisticSet{Minimum: 2, Maximum: 5, Sum: 19, SampleCount: 5}, d.Statistics)
}

func TestFlush_GaugesAndSets(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Gauges: map[string]float64{"mem.free": 1024.5},
		Sets:   map[string]statsd.Set{"users": {"a", "b", "a"}},
	})

	items := rec.Items()
	require.Len(t, items, 2)

	byName := map[string]Datum{}
	for _, d := range items {
		byName[d.MetricName] = d
	}

	assert.Equal(t, UnitNone, byName["mem.free"].Unit)
	assert.Equal(t, 1024.5, byName["mem.free"].Value)
	assert.Equal(t, UnitNone, byName["users"].Unit)
	assert.Equal(t, 2.0, byName["users"].Value)
}

func TestFlush_GroupsAreSubmittedSeparately(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"c": 1},
		Timers:   map[string][]float64{"t": {1}},
		Gauges:   map[string]float64{"g": 1},
		Sets:     map[string]statsd.Set{"s": {"x"}},
	})

	assert.Len(t, rec.Batches(), 4)
}

func TestFlush_Batching(t *testing.T) {
	b, rec := newTestBackend(t, Config{})

	counters := make(map[string]float64, 25)
	for i := range 25 {
		counters[fmt.Sprintf("app.counter%02d", i)] = float64(i)
	}

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{Counters: counters})

	batches := rec.Batches()
	require.Len(t, batches, 2)

	sizes := []int{len(batches[0].Items), len(batches[1].Items)}
	sort.Ints(sizes)
	assert.Equal(t, []int{5, 20}, sizes)
}

func TestFlush_Filtering(t *testing.T) {
	b, rec := newTestBackend(t, Config{
		Whitelist: []string{"app"},
		Blacklist: []string{"errors"},
	})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{
			"app.errors": 1, // whitelisted despite blacklist
			"db.queries": 1, // not whitelisted
		},
		Gauges: map[string]float64{"web.errors": 1},
	})

	items := rec.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "app.errors", items[0].MetricName)
}

func TestFlush_BlacklistOnly(t *testing.T) {
	b, rec := newTestBackend(t, Config{Blacklist: []string{"debug"}})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"app.debug.hits": 1, "app.hits": 1},
	})

	items := rec.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "app.hits", items[0].MetricName)
}

func TestFlush_DimensionsAttachedToEveryDatum(t *testing.T) {
	b, rec := newTestBackend(t, Config{
		Dimensions: OrderedMap{
			{Key: "env", Value: "prod"},
			{Key: "app", Value: "api"},
		},
	})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{"c1": 1, "c2": 2},
		Timers:   map[string][]float64{"t": {1, 2}},
		Gauges:   map[string]float64{"g": 1},
		Sets:     map[string]statsd.Set{"s": {"x"}},
	})

	want := []Dimension{{Name: "env", Value: "prod"}, {Name: "app", Value: "api"}}

	items := rec.Items()
	require.Len(t, items, 5)

	for _, d := range items {
		assert.Equal(t, want, d.Dimensions, d.MetricName)
	}
}

func TestFlush_BatchesPerNamespace(t *testing.T) {
	b, rec := newTestBackend(t, Config{ProcessKeyForNamespace: true})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{
			"api.requests": 1,
			"api.errors":   2,
			"db.queries":   3,
			"standalone":   4,
		},
	})

	batches := rec.Batches()
	require.Len(t, batches, 3)

	assert.Equal(t, DefaultNamespace, batches[0].Namespace)
	assert.Equal(t, "standalone", batches[0].Items[0].MetricName)

	assert.Equal(t, "api", batches[1].Namespace)
	require.Len(t, batches[1].Items, 2)
	assert.Equal(t, "errors", batches[1].Items[0].MetricName)
	assert.Equal(t, "requests", batches[1].Items[1].MetricName)

	assert.Equal(t, "db", batches[2].Namespace)
	assert.Equal(t, "queries", batches[2].Items[0].MetricName)
}

func TestFlush_LegacyGroupNamespace(t *testing.T) {
	b, rec := newTestBackend(t, Config{
		ProcessKeyForNamespace: true,
		LegacyGroupNamespace:   true,
	})

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{
		Counters: map[string]float64{
			"api.requests": 1,
			"db.queries":   3,
		},
	})

	batches := rec.Batches()
	require.Len(t, batches, 1)

	// Keys are processed in sorted order, so db.queries comes last.
	assert.Equal(t, "db", batches[0].Namespace)
	assert.Len(t, batches[0].Items, 2)
}

func TestFlush_BeforeInitIsDropped(t *testing.T) {
	rec := &recordingSubmitter{}
	b := New(testLog(), "test", Config{}, func(context.Context) (Submitter, error) {
		return rec, nil
	}, nil)

	assert.Equal(t, StateUninitialized, b.State())

	b.Flush(testTimestamp, statsd.Snapshot{Counters: map[string]float64{"c": 1}})
	require.NoError(t, b.Stop(context.Background()))

	assert.Empty(t, rec.Batches())
}

func TestInit_FailureIsDegraded(t *testing.T) {
	b := New(testLog(), "test", Config{}, func(context.Context) (Submitter, error) {
		return nil, errors.New("no credentials")
	}, nil)

	err := b.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
	assert.Equal(t, StateFailed, b.State())

	// Flushes are still accepted and fail per submission.
	b.Flush(testTimestamp, statsd.Snapshot{Counters: map[string]float64{"c": 1}})
	require.NoError(t, b.Stop(context.Background()))
}

func TestInit_DegradedSubmitterIsUsed(t *testing.T) {
	rec := &recordingSubmitter{}
	b := New(testLog(), "test", Config{}, func(context.Context) (Submitter, error) {
		return rec, errors.New("role lookup failed")
	}, nil)

	require.Error(t, b.Init(context.Background()))
	assert.Equal(t, StateFailed, b.State())

	flushAndWait(t, b, testTimestamp, statsd.Snapshot{Counters: map[string]float64{"c": 1}})

	assert.Len(t, rec.Batches(), 1)
}

func TestInit_Twice(t *testing.T) {
	b, _ := newTestBackend(t, Config{})

	assert.ErrorIs(t, b.Init(context.Background()), ErrAlreadyInitialized)
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, "ready", b.State().String())
}
