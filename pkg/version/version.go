package version

// Set via -ldflags "-X github.com/chmdznr/recsync/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
