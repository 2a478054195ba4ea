// Package version holds build metadata injected at link time, e.g.
//
//	go build -ldflags "-X github.com/NERVsystems/velomcp/pkg/version.BuildVersion=v1.2.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	// BuildVersion is the release version
	BuildVersion = "dev"
	// BuildCommit is the VCS revision
	BuildCommit = "unknown"
	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// String returns a one-line version description
func String() string {
	return fmt.Sprintf("velomcp %s (commit %s, built %s, %s)", BuildVersion, BuildCommit, BuildDate, runtime.Version())
}

// Info returns the build metadata as a map
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
		"commit":     BuildCommit,
		"build_date": BuildDate,
	}
}
