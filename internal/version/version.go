// Package version holds build metadata, set at link time with
//
//	-ldflags "-X github.com/heliradar/tracker/internal/version.Version=..."
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String is the one-line form printed by `tracker version`.
func String() string {
	return fmt.Sprintf("tracker version %s (%s, built %s)", Version, GitSHA, BuildTime)
}
