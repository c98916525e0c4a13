package backend

import "strings"

// ReservedCounterPrefix marks the collection daemon's own counters, which
// are never exported.
const ReservedCounterPrefix = "statsd."

// Filter decides which keys are exported based on the configured
// whitelist and blacklist. Matching is by substring.
type Filter struct {
	allow []string
	deny  []string
}

// NewFilter creates a Filter from the instance configuration.
func NewFilter(cfg Config) Filter {
	return Filter{
		allow: cfg.Whitelist,
		deny:  cfg.Blacklist,
	}
}

// Admit reports whether key should be exported. A whitelist match always
// admits. Otherwise a non-empty whitelist rejects by default, and a
// blacklist match rejects.
func (f Filter) Admit(key string) bool {
	if len(f.allow) > 0 {
		return containsAny(key, f.allow)
	}

	return !containsAny(key, f.deny)
}

// AdmitCounter is Admit with the reserved daemon prefix excluded.
func (f Filter) AdmitCounter(key string) bool {
	if strings.HasPrefix(key, ReservedCounterPrefix) {
		return false
	}

	return f.Admit(key)
}

func containsAny(key string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(key, s) {
			return true
		}
	}

	return false
}
