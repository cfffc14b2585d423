// Package version reports the taglet build: the values injected with
// -ldflags at release time, falling back to the VCS stamps Go embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Info contains version and build information
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built
	GitCommit = "unknown"

	// BuildTime is the time when the binary was built (RFC3339 format)
	BuildTime = "unknown"
)

// Get returns the build information.
func Get() Info {
	return Info{
		Version:   version(),
		GitCommit: commit(),
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     setting("vcs.modified") == "true",
	}
}

func version() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func commit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := setting("vcs.revision"); rev != "" {
		return rev
	}
	return "unknown"
}

func setting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// Short returns a short version string suitable for display, such as
// "v1.2.0 (abc1234)" or "dev-abc1234".
func Short() string {
	v, c := version(), commit()
	if c == "unknown" || len(c) < 7 {
		return v
	}
	if v == "dev" {
		return "dev-" + c[:7]
	}
	return fmt.Sprintf("%s (%s)", v, c[:7])
}

// Detailed returns one "Key: value" line per known build property.
func Detailed() string {
	info := Get()

	parts := []string{"Version: " + info.Version}
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Dirty {
			commit += " (dirty)"
		}
		parts = append(parts, "Commit: "+commit)
	}
	if !info.BuildTime.IsZero() {
		parts = append(parts, "Built: "+info.BuildTime.Format(time.RFC3339))
	}
	parts = append(parts, "Go: "+info.GoVersion, "Platform: "+info.Platform)
	return strings.Join(parts, "\n")
}

// IsRelease reports whether this is a release build.
func IsRelease() bool {
	v := version()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

// parseTime parses an ISO 8601 time string, returning the zero time on
// error.
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
