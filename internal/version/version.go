package version

import (
	"fmt"
	"runtime"
)

// Name is the application name reported to remote services.
const Name = "statsd-cloudwatch"

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
)

// Full returns the version string in the format "release (commit)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Release, GitCommit)
}

// FullWithPlatform returns the version string with platform information.
func FullWithPlatform() string {
	return fmt.Sprintf("%s (commit: %s, %s/%s, %s)",
		Release, GitCommit, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// UserAgent is sent with every outbound HTTP request.
func UserAgent() string {
	return Name + "/" + Release
}
