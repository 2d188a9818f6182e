package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup initializes the global zerolog logger based on environment configuration.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output
//   - app: value of the "app" field on every line, so the server and the
//     one-off commands can be told apart in shared log storage
//
// Returns the configured logger instance.
func Setup(level, format, app string) zerolog.Logger {
	return New(os.Stdout, level, format, app)
}

// New builds the logger over w.
func New(w io.Writer, level, format, app string) zerolog.Logger {
	writer := w
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	ctx := zerolog.New(writer).With().Timestamp()
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
