package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // debug | info | warn | error, default info
	Environment string // "development" enables console output
	ServiceName string
	Version     string
}

// Logger wraps zerolog so call sites share one construction path.
type Logger struct {
	zerolog.Logger
}

// New builds the process logger. Production output is JSON on stdout;
// development gets the console writer.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var out = os.Stdout
	base := zerolog.New(out)
	if cfg.Environment == "development" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	l := base.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{l}
}
