package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		key  string
		want Identity
	}{
		{key: "metric", want: Identity{MetricName: "metric"}},
		{key: "app.requests", want: Identity{Namespace: "app", MetricName: "requests"}},
		{key: "host1.app/db-latency", want: Identity{Namespace: "host1/app/db", MetricName: "latency"}},
		{key: "a..b", want: Identity{Namespace: "a/", MetricName: "b"}},
		{key: "trailing.", want: Identity{Namespace: "trailing", MetricName: ""}},
		{key: "", want: Identity{MetricName: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyKey(tt.key))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want Identity
	}{
		{
			name: "defaults use raw key and fallback namespace",
			cfg:  Config{},
			key:  "test.metric1",
			want: Identity{Namespace: DefaultNamespace, MetricName: "test.metric1"},
		},
		{
			name: "split keys",
			cfg:  Config{ProcessKeyForNamespace: true},
			key:  "app.api.requests",
			want: Identity{Namespace: "app/api", MetricName: "requests"},
		},
		{
			name: "split single segment falls back to default namespace",
			cfg:  Config{ProcessKeyForNamespace: true},
			key:  "requests",
			want: Identity{Namespace: DefaultNamespace, MetricName: "requests"},
		},
		{
			name: "split with empty last segment uses raw key",
			cfg:  Config{ProcessKeyForNamespace: true},
			key:  "app.",
			want: Identity{Namespace: "app", MetricName: "app."},
		},
		{
			name: "overrides win over split",
			cfg: Config{
				ProcessKeyForNamespace: true,
				Namespace:              "Custom",
				MetricName:             "Everything",
			},
			key:  "app.api.requests",
			want: Identity{Namespace: "Custom", MetricName: "Everything"},
		},
		{
			name: "namespace override without splitting",
			cfg:  Config{Namespace: "Custom"},
			key:  "app.requests",
			want: Identity{Namespace: "Custom", MetricName: "app.requests"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewResolver(tt.cfg).Resolve(tt.key))
		})
	}
}
