package taskpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

type callRecorder struct {
	replies  atomic.Int32
	timeouts atomic.Int32
	last     atomic.Value
	timeout  atomic.Int64
}

func (c *callRecorder) callback(r Reply) {
	c.last.Store(r)
	c.replies.Add(1)
}

func (c *callRecorder) timeoutCallback(completed bool, timeout time.Duration) {
	if completed {
		panic("timeout callback called with completed=true")
	}
	c.timeout.Store(int64(timeout))
	c.timeouts.Add(1)
}

func (c *callRecorder) call(target Target, timeout time.Duration) TimeoutCall {
	return TimeoutCall{
		ApplyArgs: ApplyArgs{
			Target:   target,
			Callback: c.callback,
		},
		Timeout:         timeout,
		TimeoutCallback: c.timeoutCallback,
	}
}

func TestApplyTimeoutWithinBudget(t *testing.T) {
	rec := &callRecorder{}

	err := ApplyTimeout(context.Background(), rec.call(valueTarget(7), 10*time.Second))
	require.NoError(t, err)

	assert.EqualValues(t, 1, rec.replies.Load())
	assert.EqualValues(t, 0, rec.timeouts.Load())
	assert.Equal(t, Reply{Completed: true, Value: 7}, rec.last.Load())
}

func TestApplyTimeoutApplyTargetRaisesTimeout(t *testing.T) {
	rec := &callRecorder{}
	call := rec.call(valueTarget(7), 10*time.Second)

	var applied atomic.Int32
	call.ApplyTarget = func(ctx context.Context, a ApplyArgs) error {
		applied.Add(1)
		return gferrors.ErrTimeout
	}

	err := ApplyTimeout(context.Background(), call)
	require.NoError(t, err)

	assert.EqualValues(t, 1, applied.Load())
	assert.EqualValues(t, 0, rec.replies.Load())
	assert.EqualValues(t, 1, rec.timeouts.Load())
	assert.Equal(t, 10*time.Second, time.Duration(rec.timeout.Load()))
}

func TestApplyTimeoutScopeExpires(t *testing.T) {
	rec := &callRecorder{}
	finished := make(chan struct{})

	target := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		defer close(finished)
		<-ctx.Done()
		return "late", nil
	}

	start := time.Now()
	err := ApplyTimeout(context.Background(), rec.call(target, 20*time.Millisecond))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("target did not observe scope expiry")
	}

	assert.EqualValues(t, 1, rec.timeouts.Load())
	assert.EqualValues(t, 0, rec.replies.Load())
}

func TestApplyTimeoutLateReplyIsDropped(t *testing.T) {
	rec := &callRecorder{}
	finished := make(chan struct{})
	var timeoutsSeen atomic.Int32

	// Ignores ctx and replies after the deadline.
	target := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		defer close(finished)
		time.Sleep(40 * time.Millisecond)
		timeoutsSeen.Store(rec.timeouts.Load())
		return "late", nil
	}

	err := ApplyTimeout(context.Background(), rec.call(target, 10*time.Millisecond))
	require.NoError(t, err)

	select {
	case <-finished:
	default:
		t.Fatal("ApplyTimeout returned before the target")
	}

	assert.EqualValues(t, 1, timeoutsSeen.Load(), "timeout reported while the target still ran")
	assert.EqualValues(t, 1, rec.timeouts.Load())
	assert.EqualValues(t, 0, rec.replies.Load())
}

func TestApplyTimeoutUsesScope(t *testing.T) {
	rec := &callRecorder{}
	call := rec.call(valueTarget(1), 5*time.Second)

	var scoped time.Duration
	call.Scope = func(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
		scoped = timeout
		return context.WithCancel(parent)
	}

	require.NoError(t, ApplyTimeout(context.Background(), call))
	assert.Equal(t, 5*time.Second, scoped)
	assert.EqualValues(t, 1, rec.replies.Load())
}

func TestApplyTimeoutKilledParent(t *testing.T) {
	rec := &callRecorder{}
	ctx, cancel := context.WithCancelCause(context.Background())

	started := make(chan struct{})
	target := makeKillableTarget(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	errc := make(chan error, 1)
	go func() { errc <- ApplyTimeout(ctx, rec.call(target, time.Hour)) }()

	<-started
	cancel(unit.ErrKilled)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ApplyTimeout did not return after kill")
	}

	assert.EqualValues(t, 0, rec.timeouts.Load())
	assert.EqualValues(t, 1, rec.replies.Load())
	assert.Equal(t, Reply{}, rec.last.Load())
}

func TestApplyTimeoutPropagatesOtherErrors(t *testing.T) {
	rec := &callRecorder{}
	call := rec.call(valueTarget(1), time.Second)
	boom := errors.New("boom")
	call.ApplyTarget = func(ctx context.Context, a ApplyArgs) error { return boom }

	err := ApplyTimeout(context.Background(), call)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, rec.timeouts.Load())
}

func TestApplyDirectly(t *testing.T) {
	t.Run("accepts then replies", func(t *testing.T) {
		var order []string
		err := ApplyDirectly(context.Background(), ApplyArgs{
			Target: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
				order = append(order, "target")
				return args, nil
			},
			Args:           []any{"x"},
			GetPID:         func() int { return 7 },
			AcceptCallback: func(pid int, _ time.Time) { order = append(order, "accept"); assert.Equal(t, 7, pid) },
			Callback:       func(r Reply) { order = append(order, "callback"); assert.True(t, r.Completed) },
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"accept", "target", "callback"}, order)
	})

	t.Run("reports target errors in the reply", func(t *testing.T) {
		boom := errors.New("boom")
		var got Reply
		err := ApplyDirectly(context.Background(), ApplyArgs{
			Target: func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
				return nil, boom
			},
			Callback: func(r Reply) { got = r },
		})
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.ErrorIs(t, got.Err, boom)
	})

	t.Run("expired scope suppresses the callback", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		<-ctx.Done()

		called := false
		err := ApplyDirectly(ctx, ApplyArgs{
			Target:   valueTarget(1),
			Callback: func(Reply) { called = true },
		})
		assert.ErrorIs(t, err, gferrors.ErrTimeout)
		assert.False(t, called)
	})

	t.Run("nil callbacks are allowed", func(t *testing.T) {
		assert.NoError(t, ApplyDirectly(context.Background(), ApplyArgs{Target: valueTarget(1)}))
	})
}
