// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildID identifies the deployed build in health reports
	BuildID = "dev"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("manga-patcher %s (build %s, commit %s, built %s)", Version, BuildID, GitCommit, BuildTime)
}
