package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pion/logging"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":      slog.LevelDebug,
		"info":       slog.LevelInfo,
		"warning":    slog.LevelWarn,
		"production": slog.LevelError,
		"bogus":      slog.LevelError,
	}
	for env, want := range cases {
		t.Setenv("LOG_LEVEL", env)
		if got := levelFromEnv(); got != want {
			t.Fatalf("LOG_LEVEL=%s: level=%v, want %v", env, got, want)
		}
	}
}

func TestToFileAndPionFactory(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	Init()

	path := filepath.Join(t.TempDir(), "logs", "coderoom.log")
	restore, err := ToFile(path)
	if err != nil {
		t.Fatalf("ToFile: %v", err)
	}

	slog.Debug("room opened", "room", "r1")

	f, ok := PionFactory().(*logging.DefaultLoggerFactory)
	if !ok {
		t.Fatalf("PionFactory returned %T", f)
	}
	if f.DefaultLogLevel != logging.LogLevelDebug {
		t.Fatalf("pion level=%v, want debug", f.DefaultLogLevel)
	}

	restore()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "room opened") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
