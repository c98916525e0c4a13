package sink

import (
	"context"
	"fmt"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	httpexport "github.com/ethpandaops/statsd-cloudwatch/internal/export/http"
)

// DatumJSON is the NDJSON record written by the HTTP sink.
type DatumJSON struct {
	Source      string              `json:"source,omitempty"`
	Namespace   string              `json:"namespace"`
	MetricName  string              `json:"metric_name"`
	Unit        string              `json:"unit"`
	Timestamp   string              `json:"timestamp"`
	Value       *float64            `json:"value,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	Sum         *float64            `json:"sum,omitempty"`
	SampleCount *float64            `json:"sample_count,omitempty"`
	Dimensions  []backend.Dimension `json:"dimensions,omitempty"`
}

func toDatumJSON(source, namespace string, d backend.Datum) DatumJSON {
	out := DatumJSON{
		Source:     source,
		Namespace:  namespace,
		MetricName: d.MetricName,
		Unit:       string(d.Unit),
		Timestamp:  backend.FormatTimestamp(d.Timestamp),
		Dimensions: d.Dimensions,
	}

	if s := d.Statistics; s != nil {
		out.Minimum = &s.Minimum
		out.Maximum = &s.Maximum
		out.Sum = &s.Sum
		out.SampleCount = &s.SampleCount
	} else {
		value := d.Value
		out.Value = &value
	}

	return out
}

// HTTP queues data points for NDJSON delivery to an HTTP endpoint.
type HTTP struct {
	log    logrus.FieldLogger
	source string
	proc   *processor.BatchItemProcessor[DatumJSON]
}

var _ backend.Submitter = (*HTTP)(nil)

// NewHTTP creates an HTTP sink. Start must be called before Submit.
func NewHTTP(log logrus.FieldLogger, cfg httpexport.Config, source string) (*HTTP, error) {
	cfg.ApplyDefaults()

	if cfg.Source != "" {
		source = cfg.Source
	}

	log = log.WithField("sink", TypeHTTP)

	proc, err := httpexport.NewProcessor[DatumJSON](log, cfg, "statsd_cloudwatch_"+source)
	if err != nil {
		return nil, fmt.Errorf("creating http processor: %w", err)
	}

	return &HTTP{
		log:    log,
		source: source,
		proc:   proc,
	}, nil
}

// Name returns the sink identifier.
func (h *HTTP) Name() string {
	return TypeHTTP
}

// Start launches the processor workers.
func (h *HTTP) Start(ctx context.Context) {
	h.proc.Start(ctx)
	h.log.Info("HTTP sink started")
}

// Submit enqueues the batch. It only fails when the queue rejects it.
func (h *HTTP) Submit(ctx context.Context, batch backend.Batch) error {
	items := make([]*DatumJSON, 0, len(batch.Items))

	for _, d := range batch.Items {
		item := toDatumJSON(h.source, batch.Namespace, d)
		items = append(items, &item)
	}

	if err := h.proc.Write(ctx, items); err != nil {
		return fmt.Errorf("queueing data points: %w", err)
	}

	return nil
}

// Shutdown drains the queue and stops the workers.
func (h *HTTP) Shutdown(ctx context.Context) error {
	return h.proc.Shutdown(ctx)
}
