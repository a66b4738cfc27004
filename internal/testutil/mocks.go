package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

// MockClock implements Clock interface for testing with controllable time.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// FakeUnit is a unit.Unit that never runs on its own. Tests drive it with
// Run or Finish and inspect Kill/Link calls.
type FakeUnit struct {
	id    uint64
	fn    unit.Func
	ctx   context.Context
	delay time.Duration

	mu        sync.Mutex
	kills     int
	linkCalls int
	links     []func(unit.Unit)
	finished  bool
	killedRes unit.KillResult
	value     any
	err       error
	done      chan struct{}
	cancel    context.CancelCauseFunc
}

// NewFakeUnit creates a live fake unit wrapping fn (which may be nil).
func NewFakeUnit(id uint64, fn unit.Func) *FakeUnit {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &FakeUnit{
		id:     id,
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (f *FakeUnit) ID() uint64 { return f.id }

func (f *FakeUnit) Done() <-chan struct{} { return f.done }

func (f *FakeUnit) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Kill counts the call. A live unit has its context canceled with
// unit.ErrKilled but keeps running until Run or Finish is called.
func (f *FakeUnit) Kill() unit.KillResult {
	f.mu.Lock()
	f.kills++
	finished := f.finished
	forced := f.killedRes
	f.mu.Unlock()

	if finished || forced == unit.AlreadyFinished {
		return unit.AlreadyFinished
	}
	f.cancel(unit.ErrKilled)
	return unit.Killed
}

// ReportAlreadyFinished makes Kill return AlreadyFinished while the unit is
// still live, simulating a kill racing the unit's own completion.
func (f *FakeUnit) ReportAlreadyFinished() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killedRes = unit.AlreadyFinished
}

func (f *FakeUnit) Link(fn func(unit.Unit)) {
	f.mu.Lock()
	f.linkCalls++
	if f.finished {
		f.mu.Unlock()
		fn(f)
		return
	}
	f.links = append(f.links, fn)
	f.mu.Unlock()
}

// Kills returns how many times Kill was called.
func (f *FakeUnit) Kills() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

// LinkCalls returns how many times Link was called.
func (f *FakeUnit) LinkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkCalls
}

// Delay returns the delay the unit was spawned with.
func (f *FakeUnit) Delay() time.Duration { return f.delay }

// Context returns the context the body runs under.
func (f *FakeUnit) Context() context.Context { return f.ctx }

// Run executes the wrapped function synchronously and finishes the unit.
func (f *FakeUnit) Run() (any, error) {
	var (
		value any
		err   error
	)
	if f.fn != nil {
		value, err = f.fn(f.ctx)
	}
	f.Finish(value, err)
	return value, err
}

// Finish marks the unit finished with the given outcome and fires links.
// Calling it twice is a no-op.
func (f *FakeUnit) Finish(value any, err error) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.finished = true
	f.value = value
	f.err = err
	links := f.links
	f.links = nil
	f.mu.Unlock()

	for _, fn := range links {
		fn(f)
	}
	close(f.done)
}

// FakeRuntime records spawned units without running them.
type FakeRuntime struct {
	mu     sync.Mutex
	nextID uint64
	units  []*FakeUnit
	// AutoRun runs each unit's body on its own goroutine as soon as it is spawned.
	AutoRun bool
}

// NewFakeRuntime creates an empty FakeRuntime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{}
}

func (r *FakeRuntime) Spawn(ctx context.Context, fn unit.Func) unit.Unit {
	return r.SpawnLater(ctx, 0, fn)
}

func (r *FakeRuntime) SpawnLater(_ context.Context, delay time.Duration, fn unit.Func) unit.Unit {
	r.mu.Lock()
	r.nextID++
	u := NewFakeUnit(r.nextID, fn)
	u.delay = delay
	r.units = append(r.units, u)
	autoRun := r.AutoRun
	r.mu.Unlock()

	if autoRun {
		go u.Run()
	}
	return u
}

// Units returns every unit spawned so far, in spawn order.
func (r *FakeRuntime) Units() []*FakeUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeUnit(nil), r.units...)
}

// Last returns the most recently spawned unit, or nil.
func (r *FakeRuntime) Last() *FakeUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.units) == 0 {
		return nil
	}
	return r.units[len(r.units)-1]
}
