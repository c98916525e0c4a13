package sink

import (
	"fmt"
	"net/url"

	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	httpexport "github.com/ethpandaops/statsd-cloudwatch/internal/export/http"
)

// Sink types.
const (
	TypeCloudWatch = "cloudwatch"
	TypeHTTP       = "http"
	TypeClickHouse = "clickhouse"
)

// Config selects and configures the sink an instance submits to.
type Config struct {
	// Type is one of cloudwatch, http or clickhouse.
	// Defaults to cloudwatch.
	Type string `yaml:"type"`

	HTTP       httpexport.Config       `yaml:"http"`
	ClickHouse export.ClickHouseConfig `yaml:"clickhouse"`
}

// ApplyDefaults fills unset fields for the selected sink type.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeCloudWatch
	}

	switch c.Type {
	case TypeHTTP:
		c.HTTP.ApplyDefaults()
	case TypeClickHouse:
		c.ClickHouse.ApplyDefaults()
	}
}

// Validate checks the configuration of the selected sink type.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeCloudWatch, "":
		return nil
	case TypeHTTP:
		if err := c.HTTP.Validate(); err != nil {
			return fmt.Errorf("http sink: %w", err)
		}
	case TypeClickHouse:
		if err := c.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("clickhouse sink: %w", err)
		}
	default:
		return fmt.Errorf("unknown sink type %q", c.Type)
	}

	return nil
}

// CloudWatchConfig holds the client settings of the CloudWatch sink.
type CloudWatchConfig struct {
	// Region is the AWS region metrics are published to.
	Region string `yaml:"region"`

	// Endpoint overrides the service endpoint, e.g. for localstack.
	Endpoint string `yaml:"endpoint"`

	// Proxy routes API calls through an HTTP proxy.
	Proxy string `yaml:"proxy"`

	// IAMRole selects credentials: empty uses the default chain, "any"
	// uses the instance profile, anything else names an instance role.
	IAMRole string `yaml:"iam_role"`
}

// Validate checks that the proxy URL, if any, parses.
func (c *CloudWatchConfig) Validate() error {
	if c.Proxy == "" {
		return nil
	}

	if _, err := proxyURL(c.Proxy); err != nil {
		return err
	}

	return nil
}

func proxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q must include scheme and host", raw)
	}

	return u, nil
}
