// Package telemetry builds the logger and metrics shared by the server.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a JSON logger on stdout, or a console logger when
// development is set. Unknown levels fall back to info.
func NewLogger(service, level string, development bool) zerolog.Logger {
	return newLogger(os.Stdout, service, level, development)
}

func newLogger(out io.Writer, service, level string, development bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if development {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
