// Package version holds the build metadata of the binary and the client
// version matching used by the metadata compatibility gate.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.3.0-dev"

// Overridden at link time, e.g.
// -ldflags "-X github.com/openmined/assetsync/internal/version.Version=0.3.1"
var (
	AppName   = "AssetSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info is a snapshot of the build metadata.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Current() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns e.g. `0.3.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns e.g. `0.3.0 (5e23a4; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`
func Detailed() string {
	i := Current()
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.Revision, i.GoVersion, i.Platform, i.BuildDate)
}

// UserAgent is sent with every request, e.g. `AssetSync/0.3.0 (linux; amd64)`
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", AppName, Version, runtime.GOOS, runtime.GOARCH)
}

// fillFromBuildInfo fills whatever the linker flags left at their defaults
// from the module and VCS stamps of the build.
func fillFromBuildInfo(info *debug.BuildInfo) {
	if info == nil {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if Version == devVersion || Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(info)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
