package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pion/logging"
)

var (
	level  slog.Level = slog.LevelError // default: production only shows errors
	output io.Writer  = os.Stderr
)

func Init() {
	level = levelFromEnv()
	install(output)
}

// ToFile redirects logs to path, so a full-screen UI can own the terminal.
// The returned function closes the file and restores stderr.
func ToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	install(f)
	return func() {
		install(os.Stderr)
		f.Close()
	}, nil
}

// PionFactory returns a logger factory for pion that follows LOG_LEVEL and
// writes wherever slog currently writes.
func PionFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = output
	switch {
	case level <= slog.LevelDebug:
		f.DefaultLogLevel = logging.LogLevelDebug
	case level <= slog.LevelInfo:
		f.DefaultLogLevel = logging.LogLevelInfo
	case level <= slog.LevelWarn:
		f.DefaultLogLevel = logging.LogLevelWarn
	default:
		f.DefaultLogLevel = logging.LogLevelError
	}
	return f
}

func install(w io.Writer) {
	output = w
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

func levelFromEnv() slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return slog.LevelError
	}
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
