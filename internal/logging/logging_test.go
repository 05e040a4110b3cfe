package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"voicepad/internal/config"
)

func TestNewAppliesLevelAndFormat(t *testing.T) {
	t.Parallel()

	logger, closer, err := New(config.LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("closing a stderr logger should be a no-op: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
}

func TestNewFallsBackToInfoText(t *testing.T) {
	t.Parallel()

	logger, _, err := New(config.LogConfig{Level: "loud", Format: ""})
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", logger.Formatter)
	}
}

func TestNewAppendsToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "voicepad.log")
	logger, closer, err := New(config.LogConfig{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}

	logger.WithField("session_id", "abc").Info("session started")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if logger.Out != os.Stderr {
		t.Fatalf("expected logger to fall back to stderr after close")
	}
	logger.Info("after close")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected a json log line, got %q: %v", line, err)
	}
	if entry["msg"] != "session started" || entry["session_id"] != "abc" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}
