package export

import (
	"cmp"
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

// Supported wire compression methods.
const (
	ClickHouseCompressionLZ4  = "lz4"
	ClickHouseCompressionZSTD = "zstd"
	ClickHouseCompressionNone = "none"
)

// ClickHouseConfig configures the ClickHouse writer.
type ClickHouseConfig struct {
	// Endpoint is the native protocol address (host:port).
	Endpoint string `yaml:"endpoint"`

	// Database defaults to "default".
	Database string `yaml:"database"`

	// Table defaults to "cloudwatch_datapoints".
	Table string `yaml:"table"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Secure enables TLS on the native connection.
	Secure bool `yaml:"secure"`

	// Compression is one of lz4, zstd or none. Defaults to lz4.
	Compression string `yaml:"compression"`

	// DialTimeout defaults to 10s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// MaxOpenConns defaults to 5.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// ApplyDefaults fills unset fields.
func (c *ClickHouseConfig) ApplyDefaults() {
	c.Database = cmp.Or(c.Database, "default")
	c.Table = cmp.Or(c.Table, "cloudwatch_datapoints")
	c.Compression = cmp.Or(c.Compression, ClickHouseCompressionLZ4)

	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}

	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 5
	}
}

// Validate checks the configuration.
func (c *ClickHouseConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("clickhouse endpoint is required")
	}

	if _, err := c.compressionMethod(); err != nil {
		return err
	}

	return nil
}

func (c *ClickHouseConfig) compressionMethod() (clickhouse.CompressionMethod, error) {
	switch c.Compression {
	case "", ClickHouseCompressionLZ4:
		return clickhouse.CompressionLZ4, nil
	case ClickHouseCompressionZSTD:
		return clickhouse.CompressionZSTD, nil
	case ClickHouseCompressionNone:
		return clickhouse.CompressionNone, nil
	default:
		return 0, fmt.Errorf("unsupported clickhouse compression %q", c.Compression)
	}
}

// DSN returns the connection string used by schema migrations.
func (c *ClickHouseConfig) DSN() string {
	u := url.URL{
		Scheme: "clickhouse",
		Host:   c.Endpoint,
		Path:   "/" + c.Database,
	}

	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}

	if c.Secure {
		u.RawQuery = "secure=true"
	}

	return u.String()
}

// QualifiedTable returns "database.table".
func (c *ClickHouseConfig) QualifiedTable() string {
	return c.Database + "." + c.Table
}

func (c *ClickHouseConfig) options() (*clickhouse.Options, error) {
	method, err := c.compressionMethod()
	if err != nil {
		return nil, err
	}

	opts := &clickhouse.Options{
		Addr: []string{c.Endpoint},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		Settings:     clickhouse.Settings{"max_execution_time": 60},
		DialTimeout:  c.DialTimeout,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: min(2, c.MaxOpenConns),
	}

	if method != clickhouse.CompressionNone {
		opts.Compression = &clickhouse.Compression{Method: method}
	}

	if c.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opts, nil
}

// ClickHouseWriter owns the connection used by the ClickHouse sink.
type ClickHouseWriter struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

// NewClickHouseWriter returns a writer with defaults applied. It does not
// connect until Start.
func NewClickHouseWriter(log logrus.FieldLogger, cfg ClickHouseConfig) *ClickHouseWriter {
	cfg.ApplyDefaults()

	return &ClickHouseWriter{
		log: log.WithField("component", "clickhouse"),
		cfg: cfg,
	}
}

// Start opens and pings the connection.
func (w *ClickHouseWriter) Start(ctx context.Context) error {
	opts, err := w.cfg.options()
	if err != nil {
		return err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()

		return fmt.Errorf("pinging clickhouse at %s: %w", w.cfg.Endpoint, err)
	}

	w.conn = conn

	w.log.WithFields(logrus.Fields{
		"endpoint":    w.cfg.Endpoint,
		"table":       w.cfg.QualifiedTable(),
		"compression": w.cfg.Compression,
		"secure":      w.cfg.Secure,
	}).Info("Connected to ClickHouse")

	return nil
}

// Conn is nil until Start succeeds.
func (w *ClickHouseWriter) Conn() clickhouse.Conn {
	return w.conn
}

func (w *ClickHouseWriter) Config() ClickHouseConfig {
	return w.cfg
}

// Stop closes the connection if one was opened.
func (w *ClickHouseWriter) Stop() error {
	if w.conn == nil {
		return nil
	}

	return w.conn.Close()
}
