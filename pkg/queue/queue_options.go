package queue

import (
	"log/slog"
	"time"

	"github.com/queueworks/taskbroker/pkg/topics"
)

// Option is a functional option for configuring a Queue.
type Option func(*queueOptions)

type queueOptions struct {
	alias            string
	rule             *topics.Rule
	allowMulti       bool
	uniqueMessageIDs bool
	retention        time.Duration
	logger           *slog.Logger
	errorLevel       slog.Level
}

// WithQueueAlias sets the queue's alias.
func WithQueueAlias(alias string) Option {
	return func(o *queueOptions) {
		if alias != "" {
			o.alias = alias
		}
	}
}

// WithTopicRule sets the queue's topic-matching rule. Leaving it unset
// makes the queue a fallback target.
func WithTopicRule(rule *topics.Rule) Option {
	return func(o *queueOptions) {
		o.rule = rule
	}
}

// WithAllowMultiHandling permits the queue to handle tasks that other
// queues handle too.
func WithAllowMultiHandling(allow bool) Option {
	return func(o *queueOptions) {
		o.allowMulti = allow
	}
}

// WithQueueUniqueMessageIDs controls duplicate detection on the queue.
// Enabled by default.
func WithQueueUniqueMessageIDs(unique bool) Option {
	return func(o *queueOptions) {
		o.uniqueMessageIDs = unique
	}
}

// WithQueueRetention sets how long finished records are kept.
func WithQueueRetention(retention time.Duration) Option {
	return func(o *queueOptions) {
		if retention > 0 {
			o.retention = retention
		}
	}
}

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorLogLevel overrides the severity used when a run fails. Queues
// whose failures are routine can log at warn or below.
func WithErrorLogLevel(level slog.Level) Option {
	return func(o *queueOptions) {
		o.errorLevel = level
	}
}
