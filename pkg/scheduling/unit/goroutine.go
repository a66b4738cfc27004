package unit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// goroutineRuntime runs every unit on its own goroutine. Kill is delivered
// as cancellation of the unit's context with cause ErrKilled, so a body is
// interrupted at its next ctx.Done() check.
type goroutineRuntime struct {
	nextID atomic.Uint64
}

// NewRuntime returns the default goroutine-backed Runtime.
func NewRuntime() Runtime {
	return &goroutineRuntime{}
}

func (r *goroutineRuntime) Spawn(ctx context.Context, fn Func) Unit {
	return r.SpawnLater(ctx, 0, fn)
}

func (r *goroutineRuntime) SpawnLater(ctx context.Context, delay time.Duration, fn Func) Unit {
	if ctx == nil {
		ctx = context.Background()
	}
	uctx, cancel := context.WithCancelCause(ctx)
	u := &goroutineUnit{
		id:     r.nextID.Add(1),
		ctx:    uctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go u.run(delay, fn)
	return u
}

type goroutineUnit struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu       sync.Mutex
	finished bool
	links    []func(Unit)
	value    any
	err      error
}

func (u *goroutineUnit) ID() uint64 { return u.id }

func (u *goroutineUnit) Done() <-chan struct{} { return u.done }

func (u *goroutineUnit) Result() (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.value, u.err
}

func (u *goroutineUnit) Kill() KillResult {
	u.mu.Lock()
	finished := u.finished
	u.mu.Unlock()

	if finished {
		return AlreadyFinished
	}
	u.cancel(ErrKilled)
	return Killed
}

func (u *goroutineUnit) Link(fn func(Unit)) {
	if fn == nil {
		return
	}

	u.mu.Lock()
	if u.finished {
		u.mu.Unlock()
		fn(u)
		return
	}
	u.links = append(u.links, fn)
	u.mu.Unlock()
}

func (u *goroutineUnit) String() string {
	return fmt.Sprintf("unit-%d", u.id)
}

func (u *goroutineUnit) run(delay time.Duration, fn Func) {
	var (
		value any
		err   error
	)
	defer func() {
		u.finish(value, err)
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-u.ctx.Done():
			timer.Stop()
			err = context.Cause(u.ctx)
			return
		}
	}

	// A kill that lands before the body starts still counts as a kill.
	if u.ctx.Err() != nil {
		err = context.Cause(u.ctx)
		return
	}

	value, err = u.call(fn)
}

// call runs fn, converting a panic into an error with the stack attached.
func (u *goroutineUnit) call(fn Func) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrKilled) {
				err = e
				return
			}
			err = fmt.Errorf("unit panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()
	return fn(u.ctx)
}

func (u *goroutineUnit) finish(value any, err error) {
	u.mu.Lock()
	u.finished = true
	u.value = value
	u.err = err
	links := u.links
	u.links = nil
	u.mu.Unlock()

	for _, fn := range links {
		fn(u)
	}

	close(u.done)
	u.cancel(context.Canceled)
}
