package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDimensions(t *testing.T) {
	dims := BuildDimensions(OrderedMap{
		{Key: "env", Value: "prod"},
		{Key: "app", Value: "api"},
		{Key: "az", Value: "a"},
	})

	assert.Equal(t, []Dimension{
		{Name: "env", Value: "prod"},
		{Name: "app", Value: "api"},
		{Name: "az", Value: "a"},
	}, dims)
}

func TestBuildDimensions_NoneConfigured(t *testing.T) {
	assert.Nil(t, BuildDimensions(nil))
	assert.Nil(t, BuildDimensions(OrderedMap{}))
}
