// Package logging builds the console logger shared by the CLI and the dev
// server.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Options control the console logger.
type Options struct {
	Out     io.Writer
	Level   string
	Colors  bool
	Verbose bool
}

// New returns a zerolog logger writing human-readable lines to opts.Out
// (stderr when nil). Verbose forces the debug level.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    !opts.Colors,
	}).Level(ParseLevel(opts.Level, opts.Verbose)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
