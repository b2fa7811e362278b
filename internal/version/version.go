// Package version reports build metadata for the veil binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at link time:
//
//	go build -ldflags "-X github.com/mrz1836/veil/internal/version.Version=v1.2.3 ..."
//
//nolint:gochecknoglobals // Link-time variables
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// shortCommitLen is the abbreviated commit length shown to users.
const shortCommitLen = 7

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns build metadata. Values not set at link time fall back to the
// module and VCS information embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(&info, bi)
	}
	return info
}

func fillFromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && info.Commit != "" && !strings.HasSuffix(info.Commit, "-dirty") {
				info.Commit += "-dirty"
			}
		}
	}
}

// String formats the build as "v1.2.3 (commit: abc1234, built: 2024-01-15)".
func (i Info) String() string {
	v, commit, date := i.Version, i.Commit, i.Date
	if v == "" {
		v = "dev"
	}
	if commit == "" {
		commit = "unknown"
	} else if len(commit) > shortCommitLen && !strings.Contains(commit, "-") {
		commit = commit[:shortCommitLen]
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, commit, date)
}
