package backend

// Dimension is a static name/value tag attached to every data point.
type Dimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BuildDimensions converts the configured dimension map into an ordered
// list of pairs. It returns nil when no dimensions are configured, so data
// points carry no dimension field at all.
func BuildDimensions(cfg OrderedMap) []Dimension {
	if len(cfg) == 0 {
		return nil
	}

	dims := make([]Dimension, 0, len(cfg))
	for _, kv := range cfg {
		dims = append(dims, Dimension{Name: kv.Key, Value: kv.Value})
	}

	return dims
}
