package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/config"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID = %q, want req-1", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID on empty context = %q", got)
	}
}

func TestLogRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)

	ctx := WithRequestID(context.Background(), "abc")
	LogRequest(logger, ctx, "GET", "/api/v1/packages", 200, 42, time.Millisecond)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["request_id"] != "abc" || entry["method"] != "GET" || entry["status"] != float64(200) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewFromConfigLevel(t *testing.T) {
	logger, closer, err := NewFromConfig(config.LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	defer closer.Close()

	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", logger.GetLevel())
	}

	if _, _, err := NewFromConfig(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewFromConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.log")
	logger, closer, err := NewFromConfig(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	logger.Info().Str("package", "left-pad").Msg("saved")
	if err := closer.Close(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"package":"left-pad"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}
