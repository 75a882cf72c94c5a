package util

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-level structured logger used for debug/verbose output
// throughout the compiler. Verbose mode (Options.Verbose) lowers its level
// to debug; otherwise info, warnings and errors are emitted.
var Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

// ConfigureLog adjusts the package logger's level based on the resolved
// Options for a compiler invocation.
func ConfigureLog(opt Options) {
	if opt.Verbose {
		Log = Log.Level(zerolog.DebugLevel)
	} else {
		Log = Log.Level(zerolog.InfoLevel)
	}
}
