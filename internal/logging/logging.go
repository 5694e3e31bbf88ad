// Package logging builds the zerolog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/model"
)

// Setup returns the process logger. The TUI owns the terminal, so unless
// toStderr is set logs go to cfg.File. The returned closer releases the
// log file and is never nil.
func Setup(cfg model.LogConfig, toStderr bool) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if !toStderr && cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !toStderr}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "portal-notify").Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
