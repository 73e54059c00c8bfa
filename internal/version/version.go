// Package version exposes build-time version information.
// The variables are overridden at build time via -ldflags:
//
//	go build -ldflags "-X edgecache/internal/version.Version=1.15.2 ..."
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)

// Info returns a human-readable version string.
func Info() string {
	return fmt.Sprintf("edgecache %s (commit %s, built %s)", Version, Commit, Date)
}
