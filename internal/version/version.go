// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/socket-client/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/socket-client/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/socket-client/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// LogAttrs returns the build information as slog key/value pairs.
func LogAttrs() []any {
	return []any{
		"version", Version,
		"commit", Commit,
		"go", runtime.Version(),
	}
}
