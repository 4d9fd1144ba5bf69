// Package shutdown turns SIGINT/SIGTERM into context cancellation, so the
// HTTP server, outbox relay and expiry sweeper all stop through the one ctx
// main hands them.
package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

// WithSignals returns a child of ctx cancelled on the first SIGINT or SIGTERM.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
