// Package version holds build-time version information.
package version

// Version is the TelScan version, overridable at build time via
// -ldflags "-X github.com/Kalinx99/TelScan/internal/version.Version=...".
var Version = "0.2.0-dev"

// Commit is the git commit hash, set at build time.
var Commit = "unknown"

// Info returns a human-readable version string.
func Info() string {
	return "telscan " + Version + " (" + Commit + ")"
}
