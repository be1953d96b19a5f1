// Package version reports the Lookout client version. Commit and Dirty are
// meant to be injected with -ldflags at build time.
package version

import (
	"fmt"
	"strings"
)

var (
	// Commit is the git commit hash of this build.
	Commit string
	// Dirty is "true" when the build tree had uncommitted changes.
	Dirty string
)

const (
	major = 0
	minor = 1
	patch = 0

	preRelease = ""
)

// Version returns the semantic version string.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if preRelease != "" {
		v += "-" + preRelease
	}
	return v
}

// RichVersion returns the version with whatever build metadata is available.
func RichVersion() string {
	v := Version()
	if c := strings.TrimSpace(Commit); c != "" {
		v += " commit=" + c
		if Dirty == "true" {
			v += " (dirty)"
		}
	}
	return v
}
