package version

import "fmt"

// Set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full() string {
	return fmt.Sprintf("voiceloop %s, commit %s, built at %s", Version, Commit, Date)
}
