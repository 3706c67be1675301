// Package logging configures the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps LOG_LEVEL values to zerolog levels. Unknown values fall
// back to error, which is also the default.
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "trace":
		return zerolog.TraceLevel
	}
	return zerolog.ErrorLevel
}

// Init builds the root logger from LOG_LEVEL and LOG_FILE. When LOG_FILE
// is set output goes there so the terminal UI is not disturbed; the
// returned closer releases it.
func Init() (zerolog.Logger, io.Closer, error) {
	level := zerolog.ErrorLevel
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l)
	}

	var (
		out    io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		closer io.Closer = nopCloser{}
	)
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out, closer = f, f
	}

	return New(out, level), closer, nil
}

func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
