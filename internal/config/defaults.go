// Package config provides centralized default configuration values.
package config

// DefaultPort is the port the poll and fetch endpoints listen on.
const DefaultPort = 5000

// DefaultIgnorePatterns is the default list of base-name globs the watcher
// skips. Empty: every file under the root is reported unless configured.
//
// Users can override via config.yaml: watch.ignore_patterns
var DefaultIgnorePatterns = []string{}

// SuggestedIgnorePatterns are written into generated config files as a
// commented-out starting point.
var SuggestedIgnorePatterns = []string{
	".git",
	".DS_Store",
	"Thumbs.db",
	"*.swp",
	"*.swo",
	"*~",
	"*.tmp",
}
