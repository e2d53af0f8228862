// Package version exposes the build version. Set it at build time with:
//
//	go build -ldflags "-X github.com/CarlosNMK25/pulsar-v1-sub001/version.Version=$(git describe --dirty)"
//
// When no version was injected, the VCS revision from the build info is
// used instead.
package version

import "runtime/debug"

var Version string

var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return vcsHash()
}()

func vcsHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if len(revision) < 7 {
		return revision
	}
	if modified {
		return revision[:7] + "-dirty"
	}
	return revision[:7]
}
