package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hackgods/clinic-booking/internal/config"
)

// New builds the process logger. Output goes to stdout and, when LOG_FILE is set, to a rotated file.
func New(cfg config.Config, service string) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return newLogger(w, cfg, service)
}

func newLogger(w io.Writer, cfg config.Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.LogLevel),
		AddSource: !cfg.IsProd(),
	}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") || (cfg.LogFormat == "" && cfg.IsProd()) {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With(
		slog.String("service", service),
		slog.String("env", cfg.Env),
	)
}

// Discard is used by tests and tools that do not care about log output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
