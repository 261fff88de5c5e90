// Package version exposes build metadata stamped in at link time.
package version

import "runtime"

// Set via -ldflags "-X github.com/perflens/perflens/pkg/version.Version=..."
// and friends; defaults identify a from-source build.
var (
	// Version is the semantic version.
	Version = "dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"

	// GoVersion is the Go toolchain that produced the binary.
	GoVersion = runtime.Version()
)
