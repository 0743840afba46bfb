// Package testhelper silences the global logger for tests. Import it for its
// side effect from any _test.go file that exercises logging code.
package testhelper

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// LogEnv enables test logging when set to any value.
const LogEnv = "MATHUTILS_TEST_LOG"

func init() {
	if testing.Testing() && os.Getenv(LogEnv) == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}
}

// EnableLogging turns the global logger back on for the duration of t.
func EnableLogging(t testing.TB, level zerolog.Level) {
	previous := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(previous)
	})
}
