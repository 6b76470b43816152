// Package buildinfo carries version data stamped in by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/cardbot/core/buildinfo.Version=v1.0.0 \
//	  -X github.com/m3rciful/cardbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/cardbot/core/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build for humans, e.g. "v1.0.0 (abc1234, built 2026-01-02T03:04:05Z)".
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, date)
}
