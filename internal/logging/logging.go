// Package logging configures zerolog output for the pipeline: a console
// writer for the operator plus an optional log file, mirroring the dual
// stdout/logfile stream the import runs are monitored through.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup configures the global zerolog level and returns a logger writing to
// stderr (console format) and, when logFile is non-empty, to that file as
// well. The returned closer is nil when no file is opened.
func Setup(level, logFile string) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	var w io.Writer = console
	var closer io.Closer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		w = zerolog.MultiLevelWriter(console, f)
		closer = f
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component returns a child logger tagged with the pipeline component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
