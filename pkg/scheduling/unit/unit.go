package unit

import (
	"context"
	"errors"
	"time"

	gfcontext "github.com/vnykmshr/greenpool/pkg/common/context"
)

// ErrKilled is the interruption delivered to a unit by Kill. It is the
// cancellation cause of the unit's context and the unit's error when it
// was killed before its function started.
var ErrKilled = errors.New("unit killed")

// Func is the body of a unit. It should return promptly once ctx is done.
type Func func(ctx context.Context) (any, error)

// KillResult reports what Kill did.
type KillResult int

const (
	// Killed means the interruption was delivered to a live unit.
	Killed KillResult = iota

	// AlreadyFinished means the unit had already returned; nothing was done.
	AlreadyFinished
)

func (r KillResult) String() string {
	switch r {
	case Killed:
		return "killed"
	case AlreadyFinished:
		return "already finished"
	default:
		return "unknown"
	}
}

// Unit is a single lightweight, independently scheduled task.
type Unit interface {
	// ID identifies the unit within its runtime.
	ID() uint64

	// Kill interrupts the unit. It is idempotent and never fails; killing a
	// finished unit returns AlreadyFinished.
	Kill() KillResult

	// Link registers fn to run exactly once after the unit finishes,
	// normally or through Kill. Linking a finished unit runs fn immediately.
	Link(fn func(Unit))

	// Done is closed after the unit has finished and its links have run.
	// Links must not wait on Done.
	Done() <-chan struct{}

	// Result returns the function's outcome. Both are zero until Done is closed.
	Result() (any, error)
}

// Runtime spawns units. Components receive a Runtime at construction
// instead of reaching for a global scheduler.
type Runtime interface {
	// Spawn creates and starts a unit immediately.
	Spawn(ctx context.Context, fn Func) Unit

	// SpawnLater creates a unit that starts after delay. Killing it before
	// then finishes it without running fn.
	SpawnLater(ctx context.Context, delay time.Duration, fn Func) Unit
}

// IsKilled reports whether err (returned by a unit body running under ctx)
// is the kill interruption rather than an ordinary failure.
func IsKilled(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrKilled) {
		return true
	}
	return ctx != nil && gfcontext.CanceledWith(ctx, ErrKilled)
}

// Wait blocks until u finishes or ctx is done.
func Wait(ctx context.Context, u Unit) (any, error) {
	select {
	case <-u.Done():
		return u.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
