package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "statsd-cloudwatch/"+Release, UserAgent())
}

func TestFull(t *testing.T) {
	assert.Contains(t, Full(), Release)
	assert.Contains(t, FullWithPlatform(), GitCommit)
}
