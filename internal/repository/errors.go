package repository

import (
	"context"
	"errors"
	"time"
)

// Common repository errors.
var (
	ErrNotFound = errors.New("record not found")
)

// Query timeouts. Webhook ingest and advice writes sit on the live-call
// path, so a wedged connection has to fail fast enough for the provider
// retry to land on a healthy replica.
const (
	// DefaultQueryTimeout bounds snapshot and transcript reads.
	DefaultQueryTimeout = 3 * time.Second

	// DefaultWriteTimeout bounds session and chunk writes.
	DefaultWriteTimeout = 5 * time.Second
)

// WithQueryTimeout returns a context with the default query timeout.
// If the context already has a deadline shorter than the timeout, the original context is returned.
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultQueryTimeout)
}

// WithWriteTimeout returns a context with the default write timeout.
func WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultWriteTimeout)
}

// withTimeout adds a timeout to a context, respecting existing deadlines.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < timeout {
			// Parent deadline is sooner; no-op cancel since the parent
			// controls it.
			return ctx, func() {}
		}
	}
	return context.WithTimeout(ctx, timeout)
}
