package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how a logger is built.
//
// Fields:
//   - Level: debug|info|warn|error (default: info).
//   - Pretty: human readable console output instead of JSON lines.
//   - Out: destination writer (default: os.Stdout).
type Options struct {
	Level  string
	Pretty bool
	Out    io.Writer
}

// New builds a zerolog.Logger from Options.
//
// The logger is returned by value and handed to every component that needs it.
// Nothing in this package keeps a process-wide instance.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opts.Out != nil {
		w = opts.Out
	}
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(opts.Level))
}

// FromEnv builds a logger from the environment.
//
// Environment variables (optional):
//   - LOG_LEVEL: debug|info|warn|error (default: info)
//   - LOG_PRETTY: true|false (default: false)
func FromEnv() zerolog.Logger {
	return New(Options{
		Level:  getenv("LOG_LEVEL", "info"),
		Pretty: strings.EqualFold(getenv("LOG_PRETTY", "false"), "true"),
	})
}

// Nop returns a disabled logger, handy for tests and optional collaborators.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ParseLevel maps a textual level to zerolog. Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
