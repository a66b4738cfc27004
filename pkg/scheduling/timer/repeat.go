package timer

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

// cronParser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as "@hourly".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Ref controls a repeating schedule created by CallRepeatedly or CallCron.
type Ref struct {
	mu        sync.Mutex
	cancelled bool
	units     map[unit.Unit]struct{}
}

func newRef() *Ref {
	return &Ref{units: make(map[unit.Unit]struct{})}
}

// Cancel stops the schedule and kills its pending run. A run that is already
// executing is interrupted through its context.
func (r *Ref) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	units := make([]unit.Unit, 0, len(r.units))
	for u := range r.units {
		units = append(units, u)
	}
	r.mu.Unlock()

	for _, u := range units {
		u.Kill()
	}
}

// Cancelled reports whether Cancel was called.
func (r *Ref) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Ref) track(u unit.Unit) {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		u.Kill()
		return
	}
	r.units[u] = struct{}{}
	r.mu.Unlock()

	u.Link(r.untrack)
}

func (r *Ref) untrack(u unit.Unit) {
	r.mu.Lock()
	delete(r.units, u)
	r.mu.Unlock()
}

// CallRepeatedly runs fn every interval until the returned Ref is canceled
// or the timer is cleared. The first run happens after one interval.
func (t *Timer) CallRepeatedly(interval time.Duration, fn EntryFunc, args ...any) (*Ref, error) {
	if interval <= 0 {
		return nil, gferrors.NewValidationError("timer", "interval", interval, "must be positive").
			WithHint("repeating entries need a positive interval")
	}
	return t.repeat(func(time.Time) time.Duration { return interval }, fn, args)
}

// CallCron runs fn at every activation of the cron expression expr.
func (t *Timer) CallCron(expr string, fn EntryFunc, args ...any) (*Ref, error) {
	if err := validation.ValidateNotEmpty("timer", "cron", expr); err != nil {
		return nil, err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, gferrors.NewValidationError("timer", "cron", expr, "invalid cron expression").
			WithHint(err.Error())
	}
	return t.repeat(func(now time.Time) time.Duration {
		return schedule.Next(now).Sub(now)
	}, fn, args)
}

func (t *Timer) repeat(next func(now time.Time) time.Duration, fn EntryFunc, args []any) (*Ref, error) {
	if err := validation.ValidateNotNil("timer", "fn", fnOrNil(fn)); err != nil {
		return nil, err
	}

	ref := newRef()
	var schedule func() error
	schedule = func() error {
		u, err := t.Enter(next(t.clock.Now()), 0, func(ctx context.Context, args ...any) error {
			err := fn(ctx, args...)
			if !ref.Cancelled() && ctx.Err() == nil {
				if serr := schedule(); serr != nil {
					t.logger.Warn("repeating entry not rescheduled", "error", serr)
				}
			}
			return err
		}, args...)
		if err != nil {
			return err
		}
		ref.track(u)
		return nil
	}

	if err := schedule(); err != nil {
		return nil, err
	}
	return ref, nil
}

func fnOrNil(fn EntryFunc) any {
	if fn == nil {
		return nil
	}
	return fn
}
