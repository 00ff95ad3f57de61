package version

// Set at build time via -ldflags, e.g.
// -X github.com/ledgermart/ledgermart/pkg/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "none"
	BuildTime = "unknown"
)
