package shared

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLogger(t *testing.T) {
	t.Run("WithLogger adds fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "push")
		logger.Info("connected")

		if !strings.Contains(buf.String(), "component=push") {
			t.Errorf("expected component field in %q", buf.String())
		}
	})

	t.Run("ApplyLogLevel", func(t *testing.T) {
		logger := NewLogger(&bytes.Buffer{})

		if err := ApplyLogLevel(logger, "debug"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", logger.GetLevel())
		}

		if err := ApplyLogLevel(logger, "chatty"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "console.log")

		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Warn("snapshot fetch failed", "collection", "jobs")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "collection=jobs") {
			t.Errorf("expected log line in file, got %q", string(data))
		}
	})

	t.Run("GenerateID", func(t *testing.T) {
		a, b := GenerateID(), GenerateID()
		if a == b {
			t.Error("expected unique ids")
		}
		if len(a) != 36 {
			t.Errorf("expected uuid string, got %s", a)
		}
	})
}
