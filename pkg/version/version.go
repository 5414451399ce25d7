// Package version derives the build identity reported in logs, the health
// endpoint, and user-agent strings.
//
// Resolution order: -ldflags override, then VCS metadata from
// debug.BuildInfo, then "dev" for test and non-git builds.
package version

import "runtime/debug"

// AppName identifies this binary in version strings and protocol handshakes.
const AppName = "tarsy"

// commitOverride can be injected at build time:
//
//	go build -ldflags "-X .../pkg/version.commitOverride=$(git rev-parse HEAD)"
//
// Needed for container builds where the .git directory is not in the build
// context.
var commitOverride string

// GitCommit is the short commit hash, or "dev" when unknown.
var GitCommit = resolveCommit()

func resolveCommit() string {
	if commitOverride != "" {
		return shorten(commitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "tarsy/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
