package backend

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultNamespace is used when neither an override nor a key-derived
// namespace is available.
const DefaultNamespace = "AwsCloudWatchStatsdBackend"

// Config holds the translation rules for one export instance.
type Config struct {
	// Namespace overrides the namespace of every data point.
	Namespace string `yaml:"namespace"`

	// MetricName overrides the metric name of every data point.
	MetricName string `yaml:"metric_name"`

	// ProcessKeyForNamespace derives namespace and metric name by splitting
	// the key on '.', '/' and '-'.
	ProcessKeyForNamespace bool `yaml:"process_key_for_namespace"`

	// LegacyGroupNamespace submits each metric-type group under the namespace
	// of the last key processed in that group instead of batching data points
	// by their own namespace.
	LegacyGroupNamespace bool `yaml:"legacy_group_namespace"`

	// Alias rewrites metric names. The first source (in declared order)
	// contained in a metric name replaces the whole name.
	Alias OrderedMap `yaml:"alias"`

	// Whitelist admits keys containing any entry, bypassing the blacklist.
	// A non-empty whitelist rejects everything it does not match.
	Whitelist []string `yaml:"whitelist"`

	// Blacklist rejects keys containing any entry.
	Blacklist []string `yaml:"blacklist"`

	// Dimensions are attached to every data point in declared order.
	Dimensions OrderedMap `yaml:"dimensions"`
}

// KeyValue is a single entry of an OrderedMap.
type KeyValue struct {
	Key   string
	Value string
}

// OrderedMap is a string map that remembers the order its keys were
// declared in the configuration file.
type OrderedMap []KeyValue

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*m = nil

		return nil
	}

	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	out := make(OrderedMap, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]

		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value for %q must be a scalar", v.Line, k.Value)
		}

		out = append(out, KeyValue{Key: k.Value, Value: v.Value})
	}

	*m = out

	return nil
}

// Get returns the value for key and whether it was present.
func (m OrderedMap) Get(key string) (string, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}

	return "", false
}
