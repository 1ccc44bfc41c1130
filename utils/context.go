package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds connection setup and teardown.
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for batch maintenance such as reaping stale tasks.
	LongTimeout = time.Minute

	// ShortTimeout is for probes and cache cleanup.
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context with long timeout
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}
