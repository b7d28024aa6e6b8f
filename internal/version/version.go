// Package version exposes the build metadata stamped into the binary.
//
// Version, Commit and Date are set through -ldflags -X at release time:
//
//	go build -ldflags "-X github.com/streamvault/streamvault/internal/version.Version=x.y.z \
//	                   -X github.com/streamvault/streamvault/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/streamvault/streamvault/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// A plain `go build` reports a dev version.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

// Stamped via -ldflags at build time.
var (
	// Version is the SemVer release, "dev" for unstamped builds, or a
	// "X.Y.Z-SNAPSHOT.<sha>" prerelease.
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the RFC3339 build timestamp.
	Date = "unknown"
)

// GoVersion is the toolchain the binary was built with.
var GoVersion = runtime.Version()

// ApplicationName names the binary in version strings and the User-Agent.
const ApplicationName = "streamvault"

// Info is the structured form of the build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo collects the build metadata.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String renders the long form used by the version subcommand.
func String() string {
	info := GetInfo()
	if Commit != "unknown" && len(Commit) >= 8 {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, info.Commit[:8], info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// JSON renders Info as an indented JSON document.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Short is the one-line form for --version output.
func Short() string {
	if Commit != "unknown" && len(Commit) >= 8 {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, Commit[:8])
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// UserAgent is the User-Agent value for outbound platform requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", ApplicationName, Version)
}

// IsSnapshot reports whether this is a dev or prerelease build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

// IsRelease reports whether this is a tagged release build.
func IsRelease() bool {
	return !IsSnapshot() && Version != "dev"
}
