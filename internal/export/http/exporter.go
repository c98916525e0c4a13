// Package http delivers data points to an HTTP endpoint in batches and
// holds the compression codecs shared with the ingest server.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/version"
)

// maxErrorBody bounds how much of a failed response is kept on StatusError.
const maxErrorBody = 512

// Exporter implements processor.ItemExporter by sending each batch as one
// HTTP request.
type Exporter[T any] struct {
	log        logrus.FieldLogger
	cfg        Config
	client     *http.Client
	compressor *Compressor
}

var _ processor.ItemExporter[any] = (*Exporter[any])(nil)

// NewExporter creates a new HTTP exporter.
func NewExporter[T any](log logrus.FieldLogger, cfg Config) (*Exporter[T], error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	compressor, err := NewCompressor(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &Exporter[T]{
		log: log.WithField("component", "http_exporter"),
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.ExportTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: cfg.Workers * 2,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   !cfg.IsKeepAlive(),
			},
		},
		compressor: compressor,
	}, nil
}

// ExportItems sends items as one request. Nil items are skipped.
func (e *Exporter[T]) ExportItems(ctx context.Context, items []*T) error {
	body, count, err := e.encode(items)
	if err != nil {
		return err
	}

	if count == 0 {
		return nil
	}

	payload, err := e.compressor.Compress(body)
	if err != nil {
		return fmt.Errorf("compressing body: %w", err)
	}

	if err := e.send(ctx, payload); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"items":      count,
		"bytes":      len(body),
		"compressed": len(payload),
	}).Debug("Exported data points via HTTP")

	return nil
}

func (e *Exporter[T]) encode(items []*T) ([]byte, int, error) {
	present := make([]*T, 0, len(items))

	for _, item := range items {
		if item != nil {
			present = append(present, item)
		}
	}

	if len(present) == 0 {
		return nil, 0, nil
	}

	var buf bytes.Buffer

	if e.cfg.Format == FormatJSON {
		if err := json.NewEncoder(&buf).Encode(present); err != nil {
			return nil, 0, fmt.Errorf("encoding items: %w", err)
		}

		return buf.Bytes(), len(present), nil
	}

	enc := json.NewEncoder(&buf)

	for _, item := range present {
		if err := enc.Encode(item); err != nil {
			return nil, 0, fmt.Errorf("encoding item: %w", err)
		}
	}

	return buf.Bytes(), len(present), nil
}

func (e *Exporter[T]) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, e.cfg.Method, e.cfg.Address, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("Content-Type", e.cfg.contentType())
	req.Header.Set("User-Agent", version.UserAgent())

	if encoding := e.compressor.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(snippet)),
	}
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}

	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// Shutdown releases the compressor.
func (e *Exporter[T]) Shutdown(_ context.Context) error {
	return e.compressor.Close()
}

// NewProcessor wraps a new Exporter in a batch processor configured from
// cfg.
func NewProcessor[T any](
	log logrus.FieldLogger,
	cfg Config,
	name string,
) (*processor.BatchItemProcessor[T], error) {
	exporter, err := NewExporter[T](log, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	// The exporter applied defaults to its own copy.
	cfg = exporter.cfg

	proc, err := processor.NewBatchItemProcessor[T](
		exporter,
		name,
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return proc, nil
}
