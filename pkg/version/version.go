// Package version holds the build version, set with -ldflags, which is sent
// in the User-Agent header of requests
package version

import (
	"runtime"
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	GitTag    string
	GitBranch string
)

const (
	// Product is the name of the library in the User-Agent header
	Product = "go-tablestore"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version returns the best available version string. It prefers the git tag
// set via -ldflags, then the branch, then the version of this module or the
// short VCS revision from the embedded build info, and finally falls back to
// "dev".
func Version() string {
	if GitTag != "" {
		return GitTag
	}
	if GitBranch != "" {
		return GitBranch
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == modulePath && dep.Version != "" && dep.Version != "(devel)" {
				return dep.Version
			}
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	return "dev"
}

// UserAgent returns the User-Agent header value, for example
// "go-tablestore/v1.0.0 (go1.25.0; linux/amd64)"
func UserAgent() string {
	return Product + "/" + Version() + " (" + runtime.Version() + "; " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE

const modulePath = "github.com/mutablelogic/go-tablestore"
