package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string
	Pretty bool
	App    string
	Env    string
}

// New builds the service logger. Unknown levels fall back to info.
func New(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.App).
		Str("env", cfg.Env).
		Logger()
}

// Init builds the logger and installs it as the package-level default, which
// components fall back to when none is injected.
func Init(cfg Config) zerolog.Logger {
	logger := New(cfg, os.Stdout)
	log.Logger = logger
	return logger
}
