package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps the configured level name, info when unknown.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup makes a text logger writing to stdout, and to logPath when
// enabled, the default one. The returned closer releases the log file.
func Setup(level, logPath string, enableFile bool) (io.Closer, error) {
	writers := []io.Writer{os.Stdout}

	var closer io.Closer = io.NopCloser(nil)

	if enableFile && logPath != "" {
		fd, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fd)
		closer = fd
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))

	slog.SetDefault(logger)

	return closer, nil
}
