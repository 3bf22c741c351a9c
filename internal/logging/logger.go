package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/dskow/devtoken/internal/config"
)

// ParseLevel converts a logging.level string to a slog.Level.
// Unknown strings map to Warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a JSON logger for cfg. The returned closer releases the log
// file when output is a path; it is a no-op for stdout and stderr.
func New(cfg config.LoggingConfig, stdout, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		w = stderr
	case "stdout":
		w = stdout
	default:
		rf, err := OpenRotatingFile(cfg.Output, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return nil, nil, err
		}
		w, closer = rf, rf
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h), closer, nil
}
