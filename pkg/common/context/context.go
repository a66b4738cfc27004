// Package context holds small helpers around the standard context package
// used by the timeout scope and kill signalling.
package context

import (
	"context"
	"errors"
	"time"
)

// ScopeFunc opens a time-bounded scope derived from parent.
type ScopeFunc func(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc)

// WithTimeoutOrCancel creates a context that is canceled either when the parent
// is canceled or when the timeout duration elapses, whichever comes first.
// A non-positive timeout yields a scope that only ends with the parent.
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// CanceledWith reports whether ctx was canceled with the given cause.
func CanceledWith(ctx context.Context, cause error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(context.Cause(ctx), cause)
}
