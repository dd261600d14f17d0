package eventing

import (
	"context"
)

// Message represents a message received from the event system
type Message interface {
	Subject() string
	Data() []byte
	Headers() Headers
}

// Headers carry message metadata and the trace context.
type Headers map[string]string

func (h Headers) Get(key string) string {
	return h[key]
}

func (h Headers) Set(key string, value string) {
	h[key] = value
}

func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

type MessageCallback func(ctx context.Context, msg Message)

type Subscriber interface {
	// Close stops the subscriber
	Close() error
}

type PublishOption func(*publishOptions)

type publishOptions struct {
	headers Headers
}

func WithHeader(key, value string) PublishOption {
	return func(o *publishOptions) {
		o.headers[key] = value
	}
}

// Client defines the interface for event clients
type Client interface {
	// Publish publishes a message to every current subscriber of subject
	Publish(ctx context.Context, subject string, data []byte, opts ...PublishOption) error
	// Subscribe calls cb for every message published to subject until the
	// subscriber or the client is closed. It returns once the subscription
	// is active.
	Subscribe(ctx context.Context, subject string, cb MessageCallback) (Subscriber, error)
	// Close closes the client
	Close() error
}
