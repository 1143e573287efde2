// Package version provides build version information.
package version

// Version is set at link time, e.g.
// go build -ldflags "-X github.com/graaaaa/sms900/internal/version.Version=1.2.0" ./cmd/sms900
var Version = "dev"

// String returns the version, or "dev" for untagged builds.
func String() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
