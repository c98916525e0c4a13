package backend

import (
	"maps"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

// Metric-type groups, in the order they are flushed.
const (
	groupCounters = "counters"
	groupTimers   = "timers"
	groupGauges   = "gauges"
	groupSets     = "sets"
)

// pending is a data point together with its resolved namespace.
type pending struct {
	namespace string
	datum     Datum
}

// Flush converts the snapshot into data points and submits them. It returns
// once every submission has been issued, without waiting for responses.
// Failures are logged only.
func (b *Backend) Flush(timestamp int64, snapshot statsd.Snapshot) {
	batcher := b.batcher.Load()
	if batcher == nil {
		b.log.Warn("Dropping flush, instance not initialized")

		if b.health != nil {
			b.health.FlushesDropped.WithLabelValues(b.name).Inc()
		}

		return
	}

	if snapshot.Empty() {
		b.log.WithField("timestamp", timestamp).Debug("Skipping empty flush")

		if b.health != nil {
			b.health.FlushesTotal.WithLabelValues(b.name).Inc()
		}

		return
	}

	start := time.Now()
	ts := FlushTime(timestamp)

	b.log.WithField("timestamp", FormatTimestamp(ts)).Info("Flushing metrics")

	build := datumBuilder{timestamp: ts, dimensions: b.dimensions}

	submits := b.ship(batcher, groupCounters, b.counters(build, snapshot.Counters))
	submits += b.ship(batcher, groupTimers, b.timers(build, snapshot.Timers))
	submits += b.ship(batcher, groupGauges, b.gauges(build, snapshot.Gauges))
	submits += b.ship(batcher, groupSets, b.sets(build, snapshot.Sets))

	if b.health != nil {
		b.health.FlushesTotal.WithLabelValues(b.name).Inc()
		b.health.FlushDuration.WithLabelValues(b.name).Observe(time.Since(start).Seconds())
	}

	b.log.WithFields(logrus.Fields{
		"keys":    snapshot.Len(),
		"submits": submits,
	}).Debug("Flush complete")
}

// identity resolves the namespace and aliased metric name of key.
func (b *Backend) identity(key string) Identity {
	id := b.resolver.Resolve(key)
	id.MetricName = b.aliases.Apply(id.MetricName)

	return id
}

func (b *Backend) counters(build datumBuilder, counters map[string]float64) []pending {
	out := make([]pending, 0, len(counters))

	for _, key := range sortedKeys(counters) {
		if !b.filter.AdmitCounter(key) {
			b.filtered(groupCounters)

			continue
		}

		id := b.identity(key)
		out = append(out, pending{
			namespace: id.Namespace,
			datum:     build.counter(id.MetricName, counters[key]),
		})
	}

	return out
}

func (b *Backend) timers(build datumBuilder, timers map[string][]float64) []pending {
	out := make([]pending, 0, len(timers))

	for _, key := range sortedKeys(timers) {
		summary, ok := SummarizeTimer(timers[key])
		if !ok {
			if b.health != nil {
				b.health.EmptyTimersSkipped.WithLabelValues(b.name).Inc()
			}

			continue
		}

		if !b.filter.Admit(key) {
			b.filtered(groupTimers)

			continue
		}

		id := b.identity(key)

		b.log.WithFields(logrus.Fields{
			"key":   key,
			"count": summary.Count,
			"mean":  summary.Mean,
		}).Trace("Summarized timer")

		out = append(out, pending{
			namespace: id.Namespace,
			datum:     build.timer(id.MetricName, summary),
		})
	}

	return out
}

func (b *Backend) gauges(build datumBuilder, gauges map[string]float64) []pending {
	out := make([]pending, 0, len(gauges))

	for _, key := range sortedKeys(gauges) {
		if !b.filter.Admit(key) {
			b.filtered(groupGauges)

			continue
		}

		id := b.identity(key)
		out = append(out, pending{
			namespace: id.Namespace,
			datum:     build.gauge(id.MetricName, gauges[key]),
		})
	}

	return out
}

func (b *Backend) sets(build datumBuilder, sets map[string]statsd.Set) []pending {
	out := make([]pending, 0, len(sets))

	for _, key := range sortedKeys(sets) {
		if !b.filter.Admit(key) {
			b.filtered(groupSets)

			continue
		}

		id := b.identity(key)
		out = append(out, pending{
			namespace: id.Namespace,
			datum:     build.set(id.MetricName, sets[key].Cardinality()),
		})
	}

	return out
}

// ship hands one group's data points to the batcher and returns the number
// of submissions issued. Data points are batched per resolved namespace in
// first-seen order, or, in legacy mode, all under the namespace of the last
// data point.
func (b *Backend) ship(batcher *Batcher, group string, items []pending) int {
	if len(items) == 0 {
		return 0
	}

	if b.health != nil {
		b.health.DatapointsBuilt.WithLabelValues(b.name, group).Add(float64(len(items)))
	}

	if b.cfg.LegacyGroupNamespace {
		datums := make([]Datum, 0, len(items))
		for _, p := range items {
			datums = append(datums, p.datum)
		}

		return batcher.Send(items[len(items)-1].namespace, datums)
	}

	namespaces := make([]string, 0, 1)
	byNamespace := make(map[string][]Datum, 1)

	for _, p := range items {
		if _, ok := byNamespace[p.namespace]; !ok {
			namespaces = append(namespaces, p.namespace)
		}

		byNamespace[p.namespace] = append(byNamespace[p.namespace], p.datum)
	}

	if b.health != nil {
		b.health.NamespacesPerGroup.WithLabelValues(b.name).Observe(float64(len(namespaces)))
	}

	var submits int
	for _, ns := range namespaces {
		submits += batcher.Send(ns, byNamespace[ns])
	}

	return submits
}

func (b *Backend) filtered(group string) {
	if b.health != nil {
		b.health.KeysFiltered.WithLabelValues(b.name, group).Inc()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
