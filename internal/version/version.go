// Package version tracks build metadata for the application.
package version

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

var (
	info      = Info{Version: "dev", GoVersion: runtime.Version()}
	infoMutex sync.RWMutex
)

// Set updates the version metadata exposed by the application. Fields left
// empty by the linker flags are filled from the VCS stamp embedded by
// `go build`, when present.
func Set(v Info) {
	bi, _ := debug.ReadBuildInfo()
	v = withBuildInfo(v, bi)

	infoMutex.Lock()
	defer infoMutex.Unlock()
	info = v
}

// Current returns the currently configured build metadata.
func Current() Info {
	infoMutex.RLock()
	defer infoMutex.RUnlock()
	return info
}

func withBuildInfo(v Info, bi *debug.BuildInfo) Info {
	if v.Version == "" {
		v.Version = "dev"
	}
	if v.GoVersion == "" {
		v.GoVersion = runtime.Version()
	}
	if bi == nil {
		return v
	}
	if bi.GoVersion != "" {
		v.GoVersion = bi.GoVersion
	}

	var revision, modified string
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			if v.BuildTime == "" {
				v.BuildTime = setting.Value
			}
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if v.Commit == "" && revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		if modified == "true" {
			revision += "-dirty"
		}
		v.Commit = revision
	}
	return v
}

// String renders the metadata for -version output.
func (i Info) String() string {
	s := i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}

// LogValue groups the metadata under one slog attribute.
func (i Info) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("version", i.Version)}
	if i.Commit != "" {
		attrs = append(attrs, slog.String("commit", i.Commit))
	}
	if i.BuildTime != "" {
		attrs = append(attrs, slog.String("built", i.BuildTime))
	}
	attrs = append(attrs, slog.String("go", i.GoVersion))
	return slog.GroupValue(attrs...)
}
