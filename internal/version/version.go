package version

// Name is the binary name reported by the version command.
const Name = "cockpit-alerts"

var (
	// Version is the semantic version of the binary. Overridden at build time
	// with -ldflags "-X cockpit-alerts/internal/version.Version=...".
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
