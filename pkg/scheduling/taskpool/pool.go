package taskpool

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/vnykmshr/greenpool/internal/logging"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

// DefaultConcurrency is the pool size used when Config.Concurrency is zero.
var DefaultConcurrency = runtime.NumCPU()

// Reply is what a job reports to its Callback. Completed is false when the
// job was terminated before its target returned; Value and Err are then nil.
type Reply struct {
	Completed bool
	Value     any
	Err       error
}

// Target is the work a job runs. ctx is canceled when the job is
// terminated or its timeout expires.
type Target func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Callback receives the job's reply once its target returns.
type Callback func(Reply)

// AcceptCallback is called when a job starts executing, with the pid of
// the executing process and the start time.
type AcceptCallback func(pid int, started time.Time)

// TimeoutCallback is called instead of Callback when a job exceeds its
// timeout. completed is always false.
type TimeoutCallback func(completed bool, timeout time.Duration)

// ApplyRequest describes one job submitted through OnApply.
type ApplyRequest struct {
	Target Target
	Args   []any
	Kwargs map[string]any

	Callback        Callback
	AcceptCallback  AcceptCallback
	TimeoutCallback TimeoutCallback

	// Timeout overrides Config.Timeout for this job when positive.
	Timeout time.Duration

	// JobID names the job for TerminateJob. A random UUID is used when empty.
	JobID string

	// ApplyTarget runs the target and delivers callbacks (default: ApplyDirectly).
	ApplyTarget ApplyTargetFunc
}

// Job is a handle to an applied job.
type Job struct {
	ID   string
	Unit unit.Unit
}

// Terminate kills the job's unit. sig is informational: units are not
// processes and cannot receive OS signals.
func (j *Job) Terminate(sig os.Signal) unit.KillResult {
	return j.Unit.Kill()
}

// Wait blocks until the job's unit finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	_, err := unit.Wait(ctx, j.Unit)
	return err
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Name    string
	Size    int
	Free    int
	Running int
	Jobs    int
	Timeout time.Duration
}

// Pool is the interface the host framework drives.
type Pool interface {
	// OnStart allocates the bounded pool. Calling it again is a no-op.
	OnStart() error

	// OnStop waits for running jobs, killing what remains when ctx expires.
	OnStop(ctx context.Context) error

	// OnApply spawns a job, blocking until a slot is free or ctx is done.
	OnApply(ctx context.Context, req ApplyRequest) (*Job, error)

	// Grow adds n slots (one when n <= 0).
	Grow(n int) error

	// Shrink removes n slots (one when n <= 0).
	Shrink(n int) error

	// NumProcesses returns the number of units currently running.
	NumProcesses() int

	// TerminateJob kills the job tracked under jobID. Unknown ids are ignored.
	TerminateJob(jobID string, sig os.Signal)

	// Stats returns size, free slots and job counts.
	Stats() Stats

	// Jobs returns the ids of tracked jobs.
	Jobs() []string
}

// Config holds configuration options for creating a task pool.
type Config struct {
	// Name labels log lines and metrics (default: "default").
	Name string

	// Concurrency is the number of jobs that may run at once
	// (default: DefaultConcurrency). Must not be negative.
	Concurrency int

	// Timeout bounds every job that does not set its own. Zero means none.
	Timeout time.Duration

	// Runtime spawns job units (default: unit.NewRuntime()).
	Runtime unit.Runtime

	// Logger receives pool events (default: discard).
	Logger *slog.Logger

	// GetPID reports the pid passed to AcceptCallback (default: os.Getpid).
	GetPID func() int
}

// TaskPool runs jobs on a bounded pool of units and tracks them by job id.
type TaskPool struct {
	name        string
	concurrency int
	timeout     time.Duration
	rt          unit.Runtime
	logger      *slog.Logger
	getPID      func() int

	mu   sync.Mutex
	pool *unit.BoundedPool
	jobs map[string]unit.Unit
}

// New creates a task pool. OnStart must be called before OnApply.
func New(cfg Config) (*TaskPool, error) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if err := validation.ValidatePositive("taskpool", "Concurrency", cfg.Concurrency); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("taskpool", "Timeout", cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Runtime == nil {
		cfg.Runtime = unit.NewRuntime()
	}
	if cfg.GetPID == nil {
		cfg.GetPID = os.Getpid
	}

	return &TaskPool{
		name:        cfg.Name,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		rt:          cfg.Runtime,
		logger:      logging.OrDiscard(cfg.Logger).With("component", "taskpool", "pool", cfg.Name),
		getPID:      cfg.GetPID,
		jobs:        make(map[string]unit.Unit),
	}, nil
}
