// Package versions exposes build metadata for the connector-sync binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknownStr = "unknown"

// Build metadata, overridden with -ldflags at release time.
var (
	Version = "dev"
	//nolint:goconst // placeholder
	Commit = unknownStr
	//nolint:goconst // placeholder
	BuildDate = unknownStr
)

// VersionInfo is the printable build metadata of the binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build metadata, falling back to the VCS stamp
// embedded by the Go toolchain for development builds.
func GetVersionInfo() VersionInfo {
	return versionInfo(Version, Commit, BuildDate, readVCS)
}

// UserAgent is the User-Agent sent to remote connector endpoints.
func UserAgent() string {
	return "connector-sync/" + GetVersionInfo().Version
}

func readVCS() map[string]string {
	settings := map[string]string{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return settings
	}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

func versionInfo(version, commit, buildDate string, vcs func() map[string]string) VersionInfo {
	if strings.HasPrefix(version, "dev") {
		settings := vcs()
		if commit == unknownStr && settings["vcs.revision"] != "" {
			commit = settings["vcs.revision"]
		}
		if buildDate == unknownStr && settings["vcs.time"] != "" {
			buildDate = settings["vcs.time"]
		}
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}

	if version == "dev" {
		version = fmt.Sprintf("build-%.*s", 8, commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
