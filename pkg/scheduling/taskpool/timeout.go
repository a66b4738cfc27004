package taskpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	gfcontext "github.com/vnykmshr/greenpool/pkg/common/context"
	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
)

// ApplyArgs is what an ApplyTargetFunc needs to run one job.
type ApplyArgs struct {
	Target         Target
	Args           []any
	Kwargs         map[string]any
	Callback       Callback
	AcceptCallback AcceptCallback
	GetPID         func() int
}

// ApplyTargetFunc runs a target and reports its reply through Callback.
// It returns gferrors.ErrTimeout when ctx's deadline passed before the
// target returned, in which case Callback is not called.
type ApplyTargetFunc func(ctx context.Context, a ApplyArgs) error

// TimeoutCall is ApplyArgs plus the timeout scope settings.
type TimeoutCall struct {
	ApplyArgs

	Timeout         time.Duration
	TimeoutCallback TimeoutCallback

	// ApplyTarget runs inside the scope (default: ApplyDirectly).
	ApplyTarget ApplyTargetFunc

	// Scope opens the time-bounded context (default: gfcontext.WithTimeoutOrCancel).
	Scope gfcontext.ScopeFunc
}

// ApplyDirectly calls AcceptCallback, runs the target and passes its reply
// to Callback. A panic in the target is reported as an incomplete reply
// carrying the panic as its error.
func ApplyDirectly(ctx context.Context, a ApplyArgs) error {
	if a.AcceptCallback != nil {
		pid := 0
		if a.GetPID != nil {
			pid = a.GetPID()
		}
		a.AcceptCallback(pid, time.Now())
	}

	reply := runTarget(ctx, a)
	if gfcontext.IsTimedOut(ctx) {
		return fmt.Errorf("target did not return in time: %w", gferrors.ErrTimeout)
	}
	if a.Callback != nil {
		a.Callback(reply)
	}
	return nil
}

func runTarget(ctx context.Context, a ApplyArgs) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			reply = Reply{Err: fmt.Errorf("target panicked: %v\nStack trace:\n%s", r, debug.Stack())}
		}
	}()

	value, err := a.Target(ctx, a.Args, a.Kwargs)
	if r, ok := value.(Reply); ok && err == nil {
		return r
	}
	return Reply{Completed: true, Value: value, Err: err}
}

// ApplyTimeout runs ApplyTarget inside a scope bounded by Timeout. When the
// scope expires, or ApplyTarget reports ErrTimeout, TimeoutCallback(false,
// Timeout) is called and nil is returned. Exactly one of Callback and
// TimeoutCallback fires per call.
//
// On expiry TimeoutCallback fires at once, but ApplyTimeout still waits for
// the target to return so the calling unit keeps its pool slot. The
// target sees its context canceled and its late reply is dropped.
func ApplyTimeout(ctx context.Context, call TimeoutCall) error {
	scope := call.Scope
	if scope == nil {
		scope = gfcontext.WithTimeoutOrCancel
	}
	applyTarget := call.ApplyTarget
	if applyTarget == nil {
		applyTarget = ApplyDirectly
	}

	var fired atomic.Bool
	args := call.ApplyArgs
	callback := call.Callback
	args.Callback = func(r Reply) {
		if fired.CompareAndSwap(false, true) && callback != nil {
			callback(r)
		}
	}
	timedOut := func() error {
		if fired.CompareAndSwap(false, true) && call.TimeoutCallback != nil {
			call.TimeoutCallback(false, call.Timeout)
		}
		return nil
	}

	sctx, cancel := scope(ctx, call.Timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- applyTarget(sctx, args)
	}()

	var err error
	expired := false
	select {
	case err = <-errc:
	case <-sctx.Done():
		if ctx.Err() == nil && gfcontext.IsTimedOut(sctx) {
			expired = true
			timedOut()
		}
		err = <-errc
	}

	if expired || errors.Is(err, gferrors.ErrTimeout) {
		return timedOut()
	}
	return err
}
