package queue

import (
	"log/slog"
	"time"
)

// EngineOption is a functional option for configuring an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	alias            string
	uniqueMessageIDs bool
	retention        time.Duration
	logger           *slog.Logger
}

// WithAlias sets the queue alias used in log lines and summaries.
func WithAlias(alias string) EngineOption {
	return func(o *engineOptions) {
		if alias != "" {
			o.alias = alias
		}
	}
}

// WithUniqueMessageIDs controls whether Verify enforces message id
// uniqueness per producer. Enabled by default.
func WithUniqueMessageIDs(unique bool) EngineOption {
	return func(o *engineOptions) {
		o.uniqueMessageIDs = unique
	}
}

// WithRetention sets how long finished records are kept before CleanUp
// removes them.
func WithRetention(retention time.Duration) EngineOption {
	return func(o *engineOptions) {
		if retention > 0 {
			o.retention = retention
		}
	}
}

// WithEngineLogger sets the logger for lifecycle operations.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
