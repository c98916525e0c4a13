package backend

import "strings"

// Identity is the resolved namespace and metric name of a key.
type Identity struct {
	Namespace  string
	MetricName string
}

// ClassifyKey splits a hierarchical key on '.', '/' and '-'. The last
// segment becomes the metric name and the remaining segments, joined with
// '/', the namespace. A key with a single segment has no namespace.
func ClassifyKey(key string) Identity {
	parts := splitKey(key)
	if len(parts) == 1 {
		return Identity{MetricName: parts[0]}
	}

	return Identity{
		Namespace:  strings.Join(parts[:len(parts)-1], "/"),
		MetricName: parts[len(parts)-1],
	}
}

func isKeySeparator(r rune) bool {
	return r == '.' || r == '/' || r == '-'
}

// splitKey keeps empty segments, so "a..b" yields three parts.
func splitKey(key string) []string {
	parts := make([]string, 0, 4)
	start := 0

	for i, r := range key {
		if isKeySeparator(r) {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}

	return append(parts, key[start:])
}

// Resolver derives the namespace and metric name for a key from the
// configured overrides and, optionally, the key itself.
type Resolver struct {
	namespace  string
	metricName string
	splitKeys  bool
}

// NewResolver creates a Resolver from the instance configuration.
func NewResolver(cfg Config) Resolver {
	return Resolver{
		namespace:  cfg.Namespace,
		metricName: cfg.MetricName,
		splitKeys:  cfg.ProcessKeyForNamespace,
	}
}

// Resolve returns the identity for key. Name precedence: override, split
// name, raw key. Namespace precedence: override, split namespace,
// DefaultNamespace.
func (r Resolver) Resolve(key string) Identity {
	var split Identity
	if r.splitKeys {
		split = ClassifyKey(key)
	}

	return Identity{
		Namespace:  firstNonEmpty(r.namespace, split.Namespace, DefaultNamespace),
		MetricName: firstNonEmpty(r.metricName, split.MetricName, key),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
