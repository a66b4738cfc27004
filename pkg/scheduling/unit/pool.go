package unit

import (
	"context"
	"sync"

	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/scheduling/semaphore"
)

// BoundedPool runs at most Size() units at once. Spawn waits for a free
// slot; each unit gives its slot back when it finishes.
type BoundedPool struct {
	rt   Runtime
	sem  *semaphore.Semaphore
	base context.Context

	mu     sync.Mutex
	units  map[Unit]struct{}
	closed bool
}

// NewBoundedPool creates a pool of size slots spawning on rt.
func NewBoundedPool(rt Runtime, size int) (*BoundedPool, error) {
	sem, err := semaphore.New(size)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		rt = NewRuntime()
	}
	return &BoundedPool{
		rt:    rt,
		sem:   sem,
		base:  context.Background(),
		units: make(map[Unit]struct{}),
	}, nil
}

// Spawn waits for a free slot, then starts fn. ctx bounds only the wait;
// the unit itself is ended by Kill, not by ctx. A pool closed while Spawn
// waits gives the slot back and returns ErrClosed.
func (p *BoundedPool) Spawn(ctx context.Context, fn Func) (Unit, error) {
	if p.Closed() {
		return nil, gferrors.ErrClosed
	}
	if err := p.sem.Acquire(ctx); err != nil {
		return nil, err
	}

	// Track before linking so a unit that already finished is discarded.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release()
		return nil, gferrors.ErrClosed
	}
	u := p.rt.Spawn(p.base, fn)
	p.units[u] = struct{}{}
	p.mu.Unlock()

	u.Link(p.discard)
	return u, nil
}

func (p *BoundedPool) discard(u Unit) {
	p.mu.Lock()
	_, ok := p.units[u]
	delete(p.units, u)
	p.mu.Unlock()

	if ok {
		p.sem.Release()
	}
}

// Close stops the pool from spawning. Units already running are left to
// Join or KillAll.
func (p *BoundedPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Closed reports whether Close was called.
func (p *BoundedPool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Size returns the maximum number of concurrent units.
func (p *BoundedPool) Size() int { return p.sem.Size() }

// Free returns the number of free slots.
func (p *BoundedPool) Free() int { return p.sem.Counter() }

// Capacity returns size and free slots read together.
func (p *BoundedPool) Capacity() (size, free int) { return p.sem.Snapshot() }

// Len returns the number of units currently tracked.
func (p *BoundedPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units)
}

// Grow adds n slots.
func (p *BoundedPool) Grow(n int) { p.sem.Grow(n) }

// Shrink removes n slots. Running units are not interrupted.
func (p *BoundedPool) Shrink(n int) error { return p.sem.Shrink(n) }

// Units returns a snapshot of the tracked units.
func (p *BoundedPool) Units() []Unit {
	p.mu.Lock()
	defer p.mu.Unlock()

	units := make([]Unit, 0, len(p.units))
	for u := range p.units {
		units = append(units, u)
	}
	return units
}

// KillAll kills every tracked unit and returns how many were still live.
func (p *BoundedPool) KillAll() int {
	killed := 0
	for _, u := range p.Units() {
		if u.Kill() == Killed {
			killed++
		}
	}
	return killed
}

// Join waits until no units are tracked or ctx is done.
func (p *BoundedPool) Join(ctx context.Context) error {
	for {
		units := p.Units()
		if len(units) == 0 {
			return nil
		}
		for _, u := range units {
			select {
			case <-u.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
