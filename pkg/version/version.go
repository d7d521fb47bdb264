// Package version reports the corpusrag build.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/Aman-CERP/corpusrag/pkg/version.Version=v0.3.0 \
//	  -X github.com/Aman-CERP/corpusrag/pkg/version.Commit=$(git rev-parse --short HEAD)"
//
// Plain 'go build' and 'go install' builds fall back to the VCS stamp the
// toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name reported by the CLI and the MCP server.
const Name = "corpusrag"

// Set with -X at link time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns the link-time values, completed from the embedded VCS
// stamp where they were not set.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String formats GetInfo on one line.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, %s/%s)",
		Name, info.Version, commit, info.Date, info.GoVersion, info.OS, info.Arch)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
