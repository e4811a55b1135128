package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerNotNil(t *testing.T) {
	logger := NewLogger(Config{})
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
}

func TestNewLoggerUsesTextHandlerWithInfoLevel(t *testing.T) {
	logger := NewLogger(Config{Format: "text", Level: "info"})

	if enabled := logger.Enabled(context.Background(), slog.LevelInfo); !enabled {
		t.Fatal("expected info level to be enabled")
	}
	if enabled := logger.Enabled(context.Background(), slog.LevelDebug); enabled {
		t.Fatal("expected debug level to be disabled")
	}
}

func TestNewLoggerJSONCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: "json", Service: "foospulse", Version: "v1", Output: &buf})
	logger.Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"foospulse"`) || !strings.Contains(out, `"version":"v1"`) {
		t.Fatalf("expected service and version fields, got %s", out)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	fallback := NewLogger(Config{})
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback logger")
	}

	scoped := NewLogger(Config{Level: "debug"})
	ctx := WithLogger(context.Background(), scoped)
	if got := FromContext(ctx, fallback); got != scoped {
		t.Fatal("expected context logger")
	}
}

func TestSkippedAndErrorAreDistinguishable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Skipped(logger, "rating job", "snapshot exists")
	Error(logger, "rating job", errors.New("boom"), FieldOutcome, OutcomeFailed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "level=INFO") || !strings.Contains(lines[0], "outcome=skipped") {
		t.Fatalf("unexpected skip line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=ERROR") || !strings.Contains(lines[1], "outcome=failed") {
		t.Fatalf("unexpected failure line: %s", lines[1])
	}
}

func TestHelpersTolerateNilLogger(t *testing.T) {
	Info(nil, "x")
	Warn(nil, "x")
	Error(nil, "x", errors.New("y"))
	Skipped(nil, "x", "y")
}
