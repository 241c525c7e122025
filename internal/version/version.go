// Package version holds build identity injected via -ldflags.
package version

import "fmt"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit SHA the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a one-line build description for logs and -version output.
func String() string {
	return fmt.Sprintf("yardwatch %s (%s, built %s)", Version, GitSHA, BuildTime)
}
