package ingest

import "errors"

// DefaultMaxBodyBytes caps a decoded flush body.
const DefaultMaxBodyBytes = 32 << 20

// Config configures the flush ingest server.
type Config struct {
	// Addr is the listen address. Defaults to ":8126".
	Addr string `yaml:"addr"`

	// MaxBodyBytes caps both the raw and the decoded request body.
	// Defaults to 32MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8126",
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8126"
	}

	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxBodyBytes < 0 {
		return errors.New("ingest max_body_bytes must not be negative")
	}

	return nil
}
