package agent

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/statsd-cloudwatch/internal/backend"
	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	"github.com/ethpandaops/statsd-cloudwatch/internal/ingest"
	"github.com/ethpandaops/statsd-cloudwatch/internal/sink"
)

// Config is the top-level configuration for the statsd-cloudwatch agent.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`

	// Ingest configures the flush event listener.
	Ingest ingest.Config `yaml:"ingest"`

	// CloudWatch holds one or more export instances.
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`

	// ShutdownTimeout bounds the wait for in-flight submissions on stop.
	// Defaults to 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CloudWatchConfig accepts either a list under "instances" or a single
// instance written inline.
type CloudWatchConfig struct {
	Instances []InstanceConfig `yaml:"instances"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CloudWatchConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: cloudwatch must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "instances" {
			continue
		}

		var instances []InstanceConfig
		if err := node.Content[i+1].Decode(&instances); err != nil {
			return fmt.Errorf("decoding cloudwatch.instances: %w", err)
		}

		c.Instances = instances

		return nil
	}

	var single InstanceConfig
	if err := node.Decode(&single); err != nil {
		return fmt.Errorf("decoding cloudwatch: %w", err)
	}

	c.Instances = []InstanceConfig{single}

	return nil
}

// InstanceConfig is one independently configured export target.
type InstanceConfig struct {
	// Name identifies the instance in logs and metrics.
	// Defaults to the region, or "instance-<n>".
	Name string `yaml:"name"`

	Backend    backend.Config        `yaml:",inline"`
	CloudWatch sink.CloudWatchConfig `yaml:",inline"`

	// Sink selects where batches are submitted. Defaults to CloudWatch.
	Sink sink.Config `yaml:"sink"`
}

// InstanceNames returns a unique name per instance, in declared order.
func (c *CloudWatchConfig) InstanceNames() []string {
	names := make([]string, len(c.Instances))
	seen := make(map[string]int, len(c.Instances))

	for i, inst := range c.Instances {
		name := inst.Name
		if name == "" {
			name = inst.CloudWatch.Region
		}

		if name == "" {
			name = "instance-" + strconv.Itoa(i)
		}

		if n := seen[name]; n > 0 && inst.Name == "" {
			name = name + "-" + strconv.Itoa(n)
		}

		seen[name]++
		names[i] = name
	}

	return names
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Health: export.HealthConfig{
			Addr: ":9090",
		},
		Ingest: ingest.DefaultConfig(),
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if err := c.Ingest.Validate(); err != nil {
		return err
	}

	// Without a cloudwatch block, run one instance on the SDK's default
	// region and credential chain.
	if len(c.CloudWatch.Instances) == 0 {
		c.CloudWatch.Instances = []InstanceConfig{{}}
	}

	names := c.CloudWatch.InstanceNames()
	seen := make(map[string]struct{}, len(names))

	for i := range c.CloudWatch.Instances {
		inst := &c.CloudWatch.Instances[i]
		name := names[i]

		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate instance name %q", name)
		}

		seen[name] = struct{}{}

		if err := inst.CloudWatch.Validate(); err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}

		inst.Sink.ApplyDefaults()

		if err := inst.Sink.Validate(); err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
	}

	return nil
}
