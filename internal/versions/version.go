// Package versions reports build information of the seatwatch binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, overridden at link time with
// -ldflags "-X github.com/stacklok/seatwatch/internal/versions.Version=v1.2.3 ..."
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Info is the build information of the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information. The commit and build date fall back
// to the VCS stamp embedded by the Go toolchain when they were not set at link time.
func GetVersionInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}
