package http

import (
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Body formats.
const (
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
)

// Config configures delivery of data points to an HTTP endpoint.
type Config struct {
	// Address is the URL data points are sent to.
	Address string `yaml:"address"`

	// Method is POST or PUT. Defaults to POST.
	Method string `yaml:"method"`

	// Format is ndjson (one record per line) or json (one array per
	// request). Defaults to ndjson.
	Format string `yaml:"format"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	// Compression is one of none, gzip, zstd, zlib, snappy.
	// Defaults to gzip.
	Compression string `yaml:"compression"`

	// BatchSize caps the records per request. Defaults to 512.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout is the longest a partial batch waits. Defaults to 5s.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout bounds one request. Defaults to 30s.
	ExportTimeout time.Duration `yaml:"export_timeout"`

	// MaxQueueSize is the number of queued records after which writes
	// are rejected. Defaults to 51200.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the number of concurrent senders. Defaults to 1.
	Workers int `yaml:"workers"`

	// KeepAlive reuses connections between requests. Defaults to true.
	KeepAlive *bool `yaml:"keep_alive"`

	// Source is stamped on every record. Defaults to the instance name.
	Source string `yaml:"source"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	keepAlive := true

	return Config{
		Method:        http.MethodPost,
		Format:        FormatNDJSON,
		Compression:   CompressionGzip,
		BatchSize:     512,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 30 * time.Second,
		MaxQueueSize:  51200,
		Workers:       1,
		KeepAlive:     &keepAlive,
	}
}

// ApplyDefaults fills zero-valued fields. Negative values are left for
// Validate to reject.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	c.Method = cmp.Or(c.Method, d.Method)
	c.Format = cmp.Or(c.Format, d.Format)
	c.Compression = cmp.Or(c.Compression, d.Compression)
	c.BatchSize = cmp.Or(c.BatchSize, d.BatchSize)
	c.BatchTimeout = cmp.Or(c.BatchTimeout, d.BatchTimeout)
	c.ExportTimeout = cmp.Or(c.ExportTimeout, d.ExportTimeout)
	c.MaxQueueSize = cmp.Or(c.MaxQueueSize, d.MaxQueueSize)
	c.Workers = cmp.Or(c.Workers, d.Workers)

	if c.KeepAlive == nil {
		c.KeepAlive = d.KeepAlive
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("http address is required")
	}

	u, err := url.Parse(c.Address)
	if err != nil {
		return fmt.Errorf("parsing http address: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("http address must use http or https, got %q", u.Scheme)
	}

	switch c.Method {
	case http.MethodPost, http.MethodPut:
	default:
		return fmt.Errorf("unsupported http method %q", c.Method)
	}

	switch c.Format {
	case FormatNDJSON, FormatJSON:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}

	switch c.Compression {
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionZlib, CompressionSnappy:
	default:
		return fmt.Errorf("invalid compression type %q", c.Compression)
	}

	if c.BatchSize <= 0 {
		return errors.New("batch_size must be greater than 0")
	}

	if c.MaxQueueSize <= 0 {
		return errors.New("max_queue_size must be greater than 0")
	}

	if c.BatchSize > c.MaxQueueSize {
		return errors.New("batch_size cannot be greater than max_queue_size")
	}

	if c.Workers <= 0 {
		return errors.New("workers must be greater than 0")
	}

	if c.BatchTimeout <= 0 || c.ExportTimeout <= 0 {
		return errors.New("batch_timeout and export_timeout must be positive")
	}

	return nil
}

// IsKeepAlive returns whether HTTP keep-alive is enabled.
func (c *Config) IsKeepAlive() bool {
	return c.KeepAlive == nil || *c.KeepAlive
}

func (c *Config) contentType() string {
	if c.Format == FormatJSON {
		return "application/json"
	}

	return "application/x-ndjson"
}
