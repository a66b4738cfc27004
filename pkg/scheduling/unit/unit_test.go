package unit

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, u Unit) {
	t.Helper()
	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatalf("unit %d did not finish", u.ID())
	}
}

func blockUntilKilled(ctx context.Context) (any, error) {
	<-ctx.Done()
	return nil, context.Cause(ctx)
}

func TestSpawnRunsAndLinks(t *testing.T) {
	rt := NewRuntime()

	var linked int32
	u := rt.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		return "some result...", nil
	})
	u.Link(func(Unit) { atomic.AddInt32(&linked, 1) })

	waitDone(t, u)
	value, err := u.Result()
	require.NoError(t, err)
	assert.Equal(t, "some result...", value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&linked))
	assert.Equal(t, AlreadyFinished, u.Kill())
}

func TestLinkAfterFinishFiresImmediately(t *testing.T) {
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		return 1, nil
	})
	waitDone(t, u)

	var got Unit
	u.Link(func(linked Unit) { got = linked })
	assert.Equal(t, u, got)
}

func TestUnitIDsAreDistinct(t *testing.T) {
	rt := NewRuntime()
	noop := func(ctx context.Context) (any, error) { return nil, nil }

	a := rt.Spawn(context.Background(), noop)
	b := rt.Spawn(context.Background(), noop)
	waitDone(t, a)
	waitDone(t, b)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestKillInterruptsRunningUnit(t *testing.T) {
	started := make(chan struct{})
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		return blockUntilKilled(ctx)
	})

	var links int32
	u.Link(func(Unit) { atomic.AddInt32(&links, 1) })

	<-started
	assert.Equal(t, Killed, u.Kill())
	waitDone(t, u)

	_, err := u.Result()
	assert.ErrorIs(t, err, ErrKilled)
	assert.True(t, IsKilled(nil, err))
	assert.Equal(t, AlreadyFinished, u.Kill())
	assert.Equal(t, AlreadyFinished, u.Kill())
	assert.Equal(t, int32(1), atomic.LoadInt32(&links))
}

func TestKillTwiceWhileRunning(t *testing.T) {
	release := make(chan struct{})
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})

	assert.Equal(t, Killed, u.Kill())
	assert.Equal(t, Killed, u.Kill())
	close(release)
	waitDone(t, u)
}

func TestSpawnLaterKilledBeforeStart(t *testing.T) {
	var ran int32
	u := NewRuntime().SpawnLater(context.Background(), time.Hour, func(ctx context.Context) (any, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	})

	assert.Equal(t, Killed, u.Kill())
	waitDone(t, u)

	_, err := u.Result()
	assert.ErrorIs(t, err, ErrKilled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestSpawnLaterRunsAfterDelay(t *testing.T) {
	start := time.Now()
	u := NewRuntime().SpawnLater(context.Background(), 30*time.Millisecond, func(ctx context.Context) (any, error) {
		return time.Since(start), nil
	})
	waitDone(t, u)

	value, err := u.Result()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value.(time.Duration), 30*time.Millisecond)
}

func TestPanicIsRecovered(t *testing.T) {
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	waitDone(t, u)

	_, err := u.Result()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unit panicked: boom"))
	assert.False(t, IsKilled(nil, err))
}

func TestPanicWithKillIsKill(t *testing.T) {
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		panic(ErrKilled)
	})
	waitDone(t, u)

	_, err := u.Result()
	assert.ErrorIs(t, err, ErrKilled)
}

func TestIsKilled(t *testing.T) {
	killedCtx, kill := context.WithCancelCause(context.Background())
	kill(ErrKilled)

	plainCtx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"nil error", killedCtx, nil, false},
		{"kill error", nil, ErrKilled, true},
		{"wrapped kill", nil, errors.Join(errors.New("x"), ErrKilled), true},
		{"canceled by kill", killedCtx, context.Canceled, true},
		{"plain cancel", plainCtx, context.Canceled, false},
		{"other error", context.Background(), errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsKilled(tt.ctx, tt.err))
		})
	}
}

func TestWait(t *testing.T) {
	u := NewRuntime().Spawn(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	value, err := Wait(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	slow := NewRuntime().Spawn(context.Background(), blockUntilKilled)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Wait(ctx, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	slow.Kill()
	waitDone(t, slow)
}

func TestKillResultString(t *testing.T) {
	assert.Equal(t, "killed", Killed.String())
	assert.Equal(t, "already finished", AlreadyFinished.String())
	assert.Equal(t, "unknown", KillResult(99).String())
}
