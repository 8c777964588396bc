// Package logging provides the process-wide zerolog setup shared by every
// worker in the host core.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the root logger. Individual components should call Component to get
// a sub-logger tagged with their name rather than logging through this
// directly.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
	With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Component returns a logger tagged with the given component name, e.g.
// "mapping" or "dispatch".
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// SetVerbose raises or lowers the global log level, driven by the operator
// console 'V' key (toggle verbose) in §6.
func SetVerbose(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
