// Package logging maps the log-level setting shared by every mathutils build
// onto zerolog levels.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// EnvVar holds the log level for builds that have no config layer, such as
// the WebAssembly module.
const EnvVar = "MATHUTILS_LOG_LEVEL"

// ParseLevel maps debug, info, warn or error to a zerolog level. Any other
// value, including the empty string, disables logging.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// SetLevelFromEnv sets the global level from EnvVar and returns it.
func SetLevelFromEnv() zerolog.Level {
	level := ParseLevel(os.Getenv(EnvVar))
	zerolog.SetGlobalLevel(level)
	return level
}
