package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsNamespace = "statsd_cloudwatch"

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// ReadyFunc reports whether the process is ready to receive flushes.
type ReadyFunc func() bool

// HealthMetrics exposes Prometheus metrics for the exporter itself.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	mu    sync.RWMutex
	ready ReadyFunc

	// Flush pipeline, labelled by instance.
	FlushesTotal       *prometheus.CounterVec   // instance
	FlushesDropped     *prometheus.CounterVec   // instance
	FlushDuration      *prometheus.HistogramVec // instance
	DatapointsBuilt    *prometheus.CounterVec   // instance, group
	KeysFiltered       *prometheus.CounterVec   // instance, group
	EmptyTimersSkipped *prometheus.CounterVec   // instance
	InstanceState      *prometheus.GaugeVec     // instance
	NamespacesPerGroup *prometheus.HistogramVec // instance

	// Sink submissions.
	SubmitsTotal    *prometheus.CounterVec   // instance, sink, status
	SubmitDuration  *prometheus.HistogramVec // instance, sink
	SubmitBatchSize *prometheus.HistogramVec // instance, sink
	SubmitsInflight *prometheus.GaugeVec     // instance

	// Inbound flush events.
	IngestRequests     *prometheus.CounterVec // status: accepted, rejected
	IngestBytes        prometheus.Counter
	IngestDecodeErrors *prometheus.CounterVec // reason

	// Mirror exporters.
	ClickHouseConnected *prometheus.GaugeVec // instance

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flushes_total",
				Help:      "Total flush events processed by instance.",
			},
			[]string{"instance"},
		),
		FlushesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flushes_dropped_total",
				Help:      "Flush events dropped because the instance was not initialized.",
			},
			[]string{"instance"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "flush_duration_seconds",
				Help:      "Time to transform a snapshot into data points, excluding network submits.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}, // 100us-100ms
			},
			[]string{"instance"},
		),
		DatapointsBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "datapoints_built_total",
				Help:      "Total data points built by instance and metric group.",
			},
			[]string{"instance", "group"},
		),
		KeysFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "keys_filtered_total",
				Help:      "Total keys rejected by the whitelist, blacklist or reserved prefix.",
			},
			[]string{"instance", "group"},
		),
		EmptyTimersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "empty_timers_skipped_total",
				Help:      "Total timers skipped because they had no observations.",
			},
			[]string{"instance"},
		),
		InstanceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "instance_state",
				Help:      "Lifecycle state of an instance (0=uninitialized, 1=ready, 2=failed).",
			},
			[]string{"instance"},
		),
		NamespacesPerGroup: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "namespaces_per_group",
				Help:      "Distinct namespaces a metric group was split into on flush.",
				Buckets:   []float64{1, 2, 5, 10, 25, 50},
			},
			[]string{"instance"},
		),
		SubmitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "submits_total",
				Help:      "Total batch submissions by instance, sink and status.",
			},
			[]string{"instance", "sink", "status"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "submit_duration_seconds",
				Help:      "Batch submission latency by instance and sink.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}, // 10ms-5s
			},
			[]string{"instance", "sink"},
		),
		SubmitBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "submit_batch_size",
				Help:      "Number of data points per submission.",
				Buckets:   []float64{1, 2, 5, 10, 15, 20},
			},
			[]string{"instance", "sink"},
		),
		SubmitsInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "submits_inflight",
				Help:      "Batch submissions currently awaiting a response.",
			},
			[]string{"instance"},
		),
		IngestRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ingest_requests_total",
				Help:      "Total inbound flush requests by outcome (accepted, rejected).",
			},
			[]string{"status"},
		),
		IngestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_bytes_total",
			Help:      "Total raw body bytes of inbound flush requests.",
		}),
		IngestDecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ingest_decode_errors_total",
				Help:      "Total rejected inbound flush requests by reason.",
			},
			[]string{"reason"},
		),
		ClickHouseConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "clickhouse_connected",
				Help:      "Whether the ClickHouse connection is established (1=yes, 0=no).",
			},
			[]string{"instance"},
		),
	}

	reg.MustRegister(
		h.FlushesTotal,
		h.FlushesDropped,
		h.FlushDuration,
		h.DatapointsBuilt,
		h.KeysFiltered,
		h.EmptyTimersSkipped,
		h.InstanceState,
		h.NamespacesPerGroup,
	)

	reg.MustRegister(
		h.SubmitsTotal,
		h.SubmitDuration,
		h.SubmitBatchSize,
		h.SubmitsInflight,
	)

	reg.MustRegister(
		h.IngestRequests,
		h.IngestBytes,
		h.IngestDecodeErrors,
		h.ClickHouseConnected,
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return h
}

// SetReadyFunc installs the check served at /readyz.
func (h *HealthMetrics) SetReadyFunc(fn ReadyFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ready = fn
}

func (h *HealthMetrics) isReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.ready == nil {
		return true
	}

	return h.ready()
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if h.addr == "" {
		h.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !h.isReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "not ready")

			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop gracefully shuts down the health metrics server.
func (h *HealthMetrics) Stop() error {
	if h.server == nil {
		return nil
	}

	return h.server.Close()
}
