package semaphore

import (
	"context"
	"sync"

	"github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
)

// Semaphore is a resizable counting semaphore. It tracks a size (maximum
// concurrent holders) and a counter of free slots. Resizing changes both by
// the same amount under a single lock, so Counter()+InUse() == Size() holds
// for every observer. After shrinking below current usage the counter goes
// negative and recovers as holders release.
type Semaphore struct {
	mu      sync.Mutex
	size    int
	counter int
	waiters []waiter
}

// waiter represents a goroutine waiting for a slot
type waiter struct {
	ready  chan struct{}   // closed when the slot is handed over
	cancel <-chan struct{} // context cancellation channel
}

// New creates a semaphore with size free slots.
func New(size int) (*Semaphore, error) {
	if err := validation.ValidatePositive("semaphore", "size", size); err != nil {
		return nil, err
	}
	return &Semaphore{
		size:    size,
		counter: size,
		waiters: make([]waiter, 0),
	}, nil
}

// TryAcquire takes a slot without blocking. It reports whether one was free.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter > 0 && len(s.waiters) == 0 {
		s.counter--
		return true
	}
	return false
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	// Check if context is already canceled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()

	// Fast path: slot available and nobody queued ahead of us
	if s.counter > 0 && len(s.waiters) == 0 {
		s.counter--
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, waiter{ready: ready, cancel: ctx.Done()})
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		if !s.removeWaiter(ready) {
			// Slot was handed over concurrently with the cancel; give it back.
			s.Release()
		}
		return ctx.Err()
	}
}

// Release returns a slot. It panics if more slots are released than held.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter >= s.size {
		panic("semaphore: released more slots than acquired")
	}
	s.counter++
	s.notifyWaiters()
}

// Grow adds n slots: size and counter both increase by n.
func (s *Semaphore) Grow(n int) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.size += n
	s.counter += n
	s.notifyWaiters()
}

// Shrink removes n slots: size and counter both decrease by n. Shrinking to
// fewer than one slot is rejected and leaves the semaphore unchanged.
func (s *Semaphore) Shrink(n int) error {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validation.ValidateAtLeast("semaphore", "size", s.size-n, 1); err != nil {
		if verr, ok := err.(*errors.ValidationError); ok {
			verr.WithHint("cannot shrink below one slot")
		}
		return err
	}
	s.size -= n
	s.counter -= n
	return nil
}

// Size returns the maximum number of concurrent holders.
func (s *Semaphore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Counter returns the number of free slots. It is negative while the
// semaphore is over-committed after a shrink.
func (s *Semaphore) Counter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size - s.counter
}

// Snapshot returns size and counter read under one lock.
func (s *Semaphore) Snapshot() (size, counter int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, s.counter
}

// notifyWaiters hands free slots to queued waiters in FIFO order.
// Must be called with s.mu held.
func (s *Semaphore) notifyWaiters() {
	remaining := s.waiters[:0]

	for _, w := range s.waiters {
		select {
		case <-w.cancel:
			// Skip canceled waiters; Acquire cleans up after itself.
			continue
		default:
		}

		if s.counter > 0 {
			s.counter--
			close(w.ready)
		} else {
			remaining = append(remaining, w)
		}
	}

	s.waiters = remaining
}

// removeWaiter drops a waiter and reports whether it was still queued.
func (s *Semaphore) removeWaiter(ready chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiters {
		if w.ready == ready {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}

	select {
	case <-ready:
		return false
	default:
		return true
	}
}
