package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/greenpool/internal/logging"
	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
	"github.com/vnykmshr/greenpool/pkg/metrics"
	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

// EntryFunc is the callback run when a timer entry fires. ctx is canceled
// when the entry is cleared while running.
type EntryFunc func(ctx context.Context, args ...any) error

// Clock supplies the current time. Tests substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// State is the lifecycle state of a timer entry.
type State int32

const (
	// Pending entries are waiting for their deadline or currently running.
	Pending State = iota
	// Fired entries started their callback.
	Fired
	// Cancelled entries were cleared before their callback ran.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fired:
		return "fired"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Entry is a read-only view of a scheduled callback.
type Entry struct {
	ETA      time.Time
	Priority int
	Seq      uint64
	Args     []any
	State    State
	UnitID   uint64
}

type entry struct {
	eta      time.Time
	priority int
	seq      uint64
	fn       EntryFunc
	args     []any
	unit     unit.Unit
	index    int
	claim    atomic.Int32
	state    atomic.Int32
}

const (
	claimNone int32 = iota
	claimRun
	claimCancel
)

// start claims e for its callback. It fails once Clear has claimed e.
func (e *entry) start() bool { return e.claim.CompareAndSwap(claimNone, claimRun) }

// cancel claims e for cancellation. It fails once the callback has started.
func (e *entry) cancel() bool { return e.claim.CompareAndSwap(claimNone, claimCancel) }

func (e *entry) view() Entry {
	var id uint64
	if e.unit != nil {
		id = e.unit.ID()
	}
	return Entry{
		ETA:      e.eta,
		Priority: e.priority,
		Seq:      e.seq,
		Args:     e.args,
		State:    State(e.state.Load()),
		UnitID:   id,
	}
}

// Config holds timer configuration.
type Config struct {
	// Name labels the timer's metrics and log lines (default: "default").
	Name string

	// Runtime spawns the units that fire entries (default: unit.NewRuntime()).
	Runtime unit.Runtime

	// Clock computes deadlines (default: wall clock).
	Clock Clock

	// Logger receives debug and warning output (default: discard).
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Registry
}

// Timer schedules callbacks to run after a delay. Every entry is indexed
// twice: in a heap ordered by deadline (for Queue) and in an in-flight set
// keyed by its spawned unit (for Clear). Both indexes drop an entry when its
// unit finishes or is cleared.
type Timer struct {
	name    string
	rt      unit.Runtime
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	queue    entryHeap
	inflight map[unit.Unit]*entry
	seq      uint64
	closed   bool
}

// New creates a timer with default configuration.
func New() *Timer {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a timer with custom configuration.
func NewWithConfig(cfg Config) *Timer {
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	rt := cfg.Runtime
	if rt == nil {
		rt = unit.NewRuntime()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Timer{
		name:     name,
		rt:       rt,
		clock:    clock,
		logger:   logging.OrDiscard(cfg.Logger).With("component", "timer", "timer", name),
		metrics:  cfg.Metrics,
		inflight: make(map[unit.Unit]*entry),
	}
}

// Enter schedules fn(args...) to run after delay and returns the unit that
// will run it. Equal deadlines fire in insertion order. A negative delay
// is treated as zero.
func (t *Timer) Enter(delay time.Duration, priority int, fn EntryFunc, args ...any) (unit.Unit, error) {
	if fn == nil {
		return nil, validation.ValidateNotNil("timer", "fn", nil)
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("cannot enter timer %q: %w", t.name, gferrors.ErrClosed)
	}

	t.seq++
	e := &entry{
		eta:      t.clock.Now().Add(delay),
		priority: priority,
		seq:      t.seq,
		fn:       fn,
		args:     args,
		index:    -1,
	}
	t.queue.push(e)
	e.unit = t.rt.SpawnLater(context.Background(), delay, t.body(e))
	t.inflight[e.unit] = e
	pending := len(t.inflight)
	t.mu.Unlock()

	// Linked after the entry is indexed so an early finish still finds it.
	e.unit.Link(t.exit)

	if t.metrics != nil {
		t.metrics.TimerEntered.WithLabelValues(t.name).Inc()
		t.metrics.TimerPending.WithLabelValues(t.name).Set(float64(pending))
	}
	t.logger.Debug("timer entry scheduled", "seq", e.seq, "delay", delay, "priority", priority)
	return e.unit, nil
}

// CallAfter schedules fn after delay with default priority.
func (t *Timer) CallAfter(delay time.Duration, fn EntryFunc, args ...any) (unit.Unit, error) {
	return t.Enter(delay, 0, fn, args...)
}

// ApplyAt schedules fn at eta. A past eta fires immediately.
func (t *Timer) ApplyAt(eta time.Time, fn EntryFunc, args ...any) (unit.Unit, error) {
	return t.Enter(eta.Sub(t.clock.Now()), 0, fn, args...)
}

func (t *Timer) body(e *entry) unit.Func {
	return func(ctx context.Context) (any, error) {
		if !e.start() {
			return nil, unit.ErrKilled
		}
		err := e.fn(ctx, e.args...)
		if err != nil && !unit.IsKilled(ctx, err) {
			t.logger.Warn("timer entry failed", "seq", e.seq, "error", err)
		}
		return nil, err
	}
}

// exit drops a finished unit from both indexes.
func (t *Timer) exit(u unit.Unit) {
	t.mu.Lock()
	e, ok := t.inflight[u]
	if ok {
		delete(t.inflight, u)
		t.queue.remove(e)
	}
	pending := len(t.inflight)
	t.mu.Unlock()

	if !ok {
		return
	}

	fired := !e.cancel()
	if fired {
		e.state.Store(int32(Fired))
	} else {
		e.state.Store(int32(Cancelled))
	}

	if t.metrics != nil {
		if fired {
			t.metrics.TimerFired.WithLabelValues(t.name).Inc()
		} else {
			t.metrics.TimerCancelled.WithLabelValues(t.name).Inc()
		}
		t.metrics.TimerPending.WithLabelValues(t.name).Set(float64(pending))
	}
}

// Clear kills every in-flight entry and empties both indexes. Units that
// already finished are skipped silently.
func (t *Timer) Clear() {
	t.mu.Lock()
	entries := make([]*entry, 0, len(t.inflight))
	for _, e := range t.inflight {
		entries = append(entries, e)
	}
	t.inflight = make(map[unit.Unit]*entry)
	t.queue = nil
	t.mu.Unlock()

	// The claim decides the state: an entry whose callback already started
	// is Fired even though its unit is killed, and one claimed here never
	// runs its callback even if its deadline passes before the kill lands.
	cancelled := 0
	for _, e := range entries {
		if e.cancel() {
			e.state.Store(int32(Cancelled))
			cancelled++
		} else {
			e.state.Store(int32(Fired))
		}
		// AlreadyFinished means the unit beat us to it; nothing to undo.
		e.unit.Kill()
	}

	if t.metrics != nil {
		t.metrics.TimerCancelled.WithLabelValues(t.name).Add(float64(cancelled))
		t.metrics.TimerFired.WithLabelValues(t.name).Add(float64(len(entries) - cancelled))
		t.metrics.TimerPending.WithLabelValues(t.name).Set(0)
	}
	if len(entries) > 0 {
		t.logger.Debug("timer cleared", "entries", len(entries), "cancelled", cancelled)
	}
}

// Stop clears the timer and rejects further entries.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Clear()
}

// Queue returns the queued entries in firing order. It does not modify
// the timer.
func (t *Timer) Queue() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	sorted := t.queue.sorted()
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = e.view()
	}
	return out
}

// Len returns the number of in-flight entries.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Empty reports whether nothing is scheduled.
func (t *Timer) Empty() bool {
	return t.Len() == 0
}
