package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/sshtabs"

// buildVersion is set via -ldflags "-X pkt.systems/sshtabs/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Version  string
	Module   string
	Revision string
	Go       string
	Platform string
}

// Current returns the best available version string.
func Current() string {
	return resolve(readBuildInfo())
}

// Module returns the module path from build info when available.
func Module() string {
	if info := readBuildInfo(); info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// Describe collects version details for the version command.
func Describe() Info {
	info := readBuildInfo()
	out := Info{
		Version:  resolve(info),
		Module:   Module(),
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info != nil {
		out.Revision, _, _ = vcsSettings(info)
	}
	return out
}

// String renders the info as a single line.
func (i Info) String() string {
	line := fmt.Sprintf("%s %s (%s, %s)", i.Module, i.Version, i.Go, i.Platform)
	if i.Revision != "" {
		line += " rev " + shortRev(i.Revision)
	}
	return line
}

func readBuildInfo() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

func resolve(info *debug.BuildInfo) string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	if info != nil {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		if v := pseudoVersion(info); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func vcsSettings(info *debug.BuildInfo) (revision string, at string, modified bool) {
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			at = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	return revision, at, modified
}

func pseudoVersion(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	revision, at, modified := vcsSettings(info)
	if revision == "" || at == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return ""
	}
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + shortRev(revision)
	if modified {
		ver += "+dirty"
	}
	return ver
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
