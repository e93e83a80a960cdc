package xlog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, cfg Config, buf *bytes.Buffer) *slog.Logger {
	t.Helper()

	level, err := resolveLevel(cfg.Level)
	if err != nil {
		t.Fatalf("invalid level: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(buf, opts)
	default:
		handler = slog.NewTextHandler(buf, opts)
	}

	return slog.New(handler)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "text format",
			config: Config{
				Level:  "info",
				Format: "text",
				Output: "stdout",
			},
		},
		{
			name: "json format",
			config: Config{
				Level:     "debug",
				Format:    "json",
				AddSource: true,
				Output:    "stderr",
			},
		},
		{
			name:   "defaults",
			config: Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer log.Close()
			if log.Logger == nil {
				t.Error("Logger field is nil")
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestLogLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(t, Config{Level: "warn", Format: "text"}, buf)

	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "info message") {
		t.Error("info record must be filtered at warn level")
	}
	if !strings.Contains(output, `msg="warn message"`) {
		t.Errorf("missing warn record: %s", output)
	}
	if !strings.Contains(output, `msg="error message"`) {
		t.Errorf("missing error record: %s", output)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()

	if l := FromContext(ctx); l == nil || l.Logger == nil {
		t.Fatal("FromContext must fall back to the default logger")
	}

	logger := &Logger{Logger: slog.Default()}
	ctx = WithContext(ctx, logger)
	if FromContext(ctx) != logger {
		t.Error("FromContext must return the stored logger")
	}

	ctx2 := WithAttrs(ctx, "component", "test")
	if FromContext(ctx2) == logger {
		t.Error("WithAttrs must derive a new logger")
	}
}
