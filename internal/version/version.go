// Package version provides build and version information for questgraph.
package version

// Version is the current release version. Override at build time with:
//
//	go build -ldflags "-X github.com/questforge/questgraph/internal/version.Version=x.y.z"
var Version = "0.3.0"
