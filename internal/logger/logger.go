// Package logger builds the process-wide zerolog logger. JSON output in
// prod, human readable console output everywhere else.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the application logger for the given environment.
func New(env string) zerolog.Logger {
	if env == "prod" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	return zerolog.New(out).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}
