package broker

import (
	"log/slog"

	"github.com/queueworks/taskbroker/pkg/queue"
)

// BrokerOption is a functional option for configuring a Broker.
type BrokerOption func(*brokerOptions)

type brokerOptions struct {
	logger *slog.Logger
}

// WithLogger sets the broker's logger.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(o *brokerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// HandleOption attaches delivery metadata to a submitted task.
type HandleOption func(*queue.Meta)

// WithTopics sets the routing topics of the submission.
func WithTopics(topics ...string) HandleOption {
	return func(m *queue.Meta) {
		m.Topics = topics
	}
}

// WithProducer sets the logical source of the submission.
func WithProducer(producer string) HandleOption {
	return func(m *queue.Meta) {
		m.Producer = producer
	}
}

// WithMessageID sets the producer-scoped idempotency key.
func WithMessageID(messageID string) HandleOption {
	return func(m *queue.Meta) {
		m.MessageID = messageID
	}
}

// WithChannel sets the transport channel the task arrived on.
func WithChannel(channel string) HandleOption {
	return func(m *queue.Meta) {
		m.Channel = channel
	}
}
