package context

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutOrCancel(t *testing.T) {
	t.Run("expires after timeout", func(t *testing.T) {
		ctx, cancel := WithTimeoutOrCancel(context.Background(), 10*time.Millisecond)
		defer cancel()

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("scope did not expire")
		}
		if !IsTimedOut(ctx) {
			t.Errorf("expected timed out, got %v", ctx.Err())
		}
	})

	t.Run("zero timeout never expires on its own", func(t *testing.T) {
		ctx, cancel := WithTimeoutOrCancel(context.Background(), 0)
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline")
		}
		cancel()
		if !errors.Is(ctx.Err(), context.Canceled) {
			t.Error("expected canceled after cancel")
		}
		if IsTimedOut(ctx) {
			t.Error("cancel must not be reported as a timeout")
		}
	})

	t.Run("parent cancel ends scope", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		ctx, cancel := WithTimeoutOrCancel(parent, time.Hour)
		defer cancel()

		cancelParent()
		if ctx.Err() == nil {
			t.Error("expected scope canceled with parent")
		}
	})
}

func TestCanceledWith(t *testing.T) {
	errKilled := errors.New("killed")

	ctx, cancel := context.WithCancelCause(context.Background())
	if CanceledWith(ctx, errKilled) {
		t.Fatal("live context must not report a cause")
	}

	cancel(errKilled)
	if !CanceledWith(ctx, errKilled) {
		t.Error("expected cause to match")
	}

	child, childCancel := context.WithTimeout(ctx, time.Hour)
	defer childCancel()
	if !CanceledWith(child, errKilled) {
		t.Error("expected cause to propagate to children")
	}

	other, otherCancel := context.WithCancel(context.Background())
	otherCancel()
	if CanceledWith(other, errKilled) {
		t.Error("plain cancel must not match the kill cause")
	}
}
