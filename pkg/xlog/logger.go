// Package xlog provides the application logger: a thin wrapper around
// log/slog with file rotation and context plumbing.
package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nautkit/anchor/pkg/xlog/rotate"
)

// Config configures the logger.
type Config struct {
	// Level is the log level: debug/info/warn/error (default: info).
	Level string `yaml:"level" json:"level" toml:"level"`

	// Format is the log format: json/text (default: text).
	Format string `yaml:"format" json:"format" toml:"format"`

	// AddSource adds the source file and line to every record.
	AddSource bool `yaml:"add_source" json:"add_source" toml:"add_source"`

	// Output is the log destination: stdout/stderr/a file path
	// (default: stdout). File output rotates daily.
	Output string `yaml:"output" json:"output" toml:"output"`

	// MaxAge is the number of days rotated files are kept (file output
	// only); 0 keeps them forever.
	MaxAge int `yaml:"max_age" json:"max_age" toml:"max_age"`
}

// Logger wraps slog.Logger together with resource cleanup. It embeds
// *slog.Logger, so all slog methods are available directly. Call Close when
// done to release file resources.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// New creates a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	cfg = normalize(cfg)

	writer, closer, err := resolveWriter(cfg)
	if err != nil {
		return nil, err
	}

	level, err := resolveLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	return &Logger{
		Logger: slog.New(handler),
		closer: closer,
	}, nil
}

// MustNew creates a Logger from cfg, panicking on failure. Intended for
// program startup where a broken logger config is fatal.
func MustNew(cfg Config) *Logger {
	logger, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}

func normalize(cfg Config) Config {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	return cfg
}

func resolveWriter(cfg Config) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		// File output rotates daily.
		return rotate.New(rotate.Config{
			Filename: cfg.Output,
			MaxAge:   cfg.MaxAge,
		})
	}
}

func resolveLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
