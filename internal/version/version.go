// Package version contains build version information.
package version

import "fmt"

// Set at build time via ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

// UserAgent is the User-Agent sent by the console client.
func UserAgent() string {
	return "incidentctl/" + Version
}
