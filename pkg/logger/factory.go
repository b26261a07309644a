package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Format represents logger output format.
type Format string

const (
	// FormatJSON outputs structured logs for log aggregation systems.
	FormatJSON Format = "json"
	// FormatText outputs human-readable logs for development.
	FormatText Format = "text"
)

// Option configures logger creation.
type Option func(*factoryConfig)

type factoryConfig struct {
	level  slog.Level
	format Format
	output io.Writer
	attrs  []slog.Attr
}

// WithLevel sets the minimum level the logger emits.
func WithLevel(l slog.Level) Option {
	return func(c *factoryConfig) { c.level = l }
}

// WithFormat sets output format. Panics for invalid formats: a
// misconfigured logger should prevent startup, not fail at runtime.
func WithFormat(f Format) Option {
	return func(c *factoryConfig) {
		switch f {
		case FormatJSON, FormatText:
			c.format = f
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
	}
}

// WithOutput redirects log output, mainly for tests.
func WithOutput(w io.Writer) Option {
	return func(c *factoryConfig) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttrs attaches attributes to every record the logger emits.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(c *factoryConfig) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// New builds a slog.Logger. Defaults: info level, JSON format, stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &factoryConfig{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ho := &slog.HandlerOptions{Level: cfg.level}

	var handler slog.Handler
	switch cfg.format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.output, ho)
	default:
		handler = slog.NewJSONHandler(cfg.output, ho)
	}

	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}

	return slog.New(handler)
}
