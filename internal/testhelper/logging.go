package testhelper

import (
	"os"

	"github.com/rs/zerolog"
)

// LogEnv enables test logging when set to a zerolog level name.
const LogEnv = "ENGINE_TEST_LOG"

// init disables logging for tests unless ENGINE_TEST_LOG is set
func init() {
	SetupLogging()
}

// SetupLogging applies the level named by ENGINE_TEST_LOG, or disables
// logging entirely when it is unset or invalid.
func SetupLogging() {
	level, err := zerolog.ParseLevel(os.Getenv(LogEnv))
	if err != nil || os.Getenv(LogEnv) == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return
	}
	zerolog.SetGlobalLevel(level)
}
