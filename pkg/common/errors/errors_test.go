package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err:  NewValidationError("taskpool", "concurrency", 0, "must be positive"),
			want: "taskpool: invalid concurrency=0 (must be positive)",
		},
		{
			name: "with hint",
			err: NewValidationError("timer", "interval", -time.Second, "cannot be negative").
				WithHint("use a positive duration"),
			want: "timer: invalid interval=-1s (cannot be negative) - use a positive duration",
		},
		{
			name: "nil value",
			err:  NewValidationError("control", "redis", nil, "cannot be nil"),
			want: "control: invalid redis=<nil> (cannot be nil)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInvalidConfiguration) {
				t.Error("ValidationError should unwrap to ErrInvalidConfiguration")
			}
		})
	}
}

func TestOperationError(t *testing.T) {
	err := NewOperationError("taskpool", "stop", errDeadline).WithContext("killed 3 jobs")

	want := "taskpool.stop failed: deadline exceeded (killed 3 jobs)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, errDeadline) {
		t.Error("OperationError should unwrap to its cause")
	}

	bare := NewOperationError("control", "receive", ErrClosed)
	if got := bare.Error(); got != "control.receive failed: resource is closed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(bare, ErrClosed) {
		t.Error("expected ErrClosed in chain")
	}
}

var errDeadline = errors.New("deadline exceeded")

func TestIsValidationError(t *testing.T) {
	verr := NewValidationError("semaphore", "capacity", 0, "must be at least 1")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct", verr, true},
		{"wrapped", fmt.Errorf("shrink: %w", verr), true},
		{"inside operation error", NewOperationError("taskpool", "shrink", verr), true},
		{"sentinel only", ErrInvalidConfiguration, false},
		{"other", ErrTimeout, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrClosed, ErrTimeout, ErrInvalidConfiguration, ErrNotStarted}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
