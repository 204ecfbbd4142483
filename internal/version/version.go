package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is set with -ldflags "-X fundingwatch/internal/version.Version=...".
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String formats the build information for the version command and startup log.
func String() string {
	return fmt.Sprintf("fundingwatch %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
