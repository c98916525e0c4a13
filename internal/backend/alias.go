package backend

import "strings"

// AliasTable rewrites metric names by substring match.
type AliasTable struct {
	rules OrderedMap
}

// NewAliasTable creates an AliasTable evaluating rules in the given order.
func NewAliasTable(rules OrderedMap) AliasTable {
	return AliasTable{rules: rules}
}

// Apply returns the replacement of the first rule whose source occurs
// anywhere in name, or name unchanged if no rule matches. The whole name is
// replaced, never just the matched part.
func (a AliasTable) Apply(name string) string {
	for _, rule := range a.rules {
		if strings.Contains(name, rule.Key) {
			return rule.Value
		}
	}

	return name
}

// Len returns the number of alias rules.
func (a AliasTable) Len() int {
	return len(a.rules)
}
