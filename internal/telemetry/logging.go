package telemetry

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Format string
	Level  string
}

// LogConfigFromEnv reads PIXELCONVERT_LOG_FORMAT and PIXELCONVERT_LOG_LEVEL.
func LogConfigFromEnv() LogConfig {
	return LogConfig{
		Format: os.Getenv("PIXELCONVERT_LOG_FORMAT"),
		Level:  os.Getenv("PIXELCONVERT_LOG_LEVEL"),
	}
}

// NewLogger builds the process logger for one component. Output goes to
// stderr.
func NewLogger(component string, cfg LogConfig) zerolog.Logger {
	return newLogger(os.Stderr, component, cfg)
}

func newLogger(w io.Writer, component string, cfg LogConfig) zerolog.Logger {
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
