package runner

var (
	// Version is the current bot version, injected at build time via -ldflags
	Version = "dev"

	// BuildDate is the timestamp of the build, injected via -ldflags
	BuildDate = "unknown"

	// Commit is the git commit hash, injected via -ldflags
	Commit = "none"
)
