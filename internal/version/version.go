// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/smazurov/dawio/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info is served by /api/version and printed by --version.
type Info struct {
	Version   string   `json:"version" example:"0.4.0" doc:"Release version"`
	GitCommit string   `json:"git_commit,omitempty" doc:"Source revision"`
	BuildDate string   `json:"build_date,omitempty" doc:"Build timestamp"`
	GoVersion string   `json:"go_version" doc:"Go toolchain"`
	Platform  string   `json:"platform" example:"linux/arm64" doc:"GOOS/GOARCH"`
	Backends  []string `json:"backends,omitempty" doc:"Audio backends compiled into this binary"`
}

// Get returns the build metadata. Without ldflags the VCS revision recorded
// by the go tool is used.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.GitCommit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	commit := i.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		return fmt.Sprintf("dawio %s (%s, %s)", i.Version, i.Platform, i.GoVersion)
	}
	return fmt.Sprintf("dawio %s (%s, %s, %s)", i.Version, commit, i.Platform, i.GoVersion)
}
