package taskpool

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
	"github.com/vnykmshr/greenpool/pkg/scheduling/unit"
)

// OnStart allocates the bounded pool.
func (tp *TaskPool) OnStart() error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.pool != nil {
		return nil
	}
	pool, err := unit.NewBoundedPool(tp.rt, tp.concurrency)
	if err != nil {
		return err
	}
	tp.pool = pool
	tp.jobs = make(map[string]unit.Unit)
	tp.logger.Info("task pool started", "concurrency", tp.concurrency, "timeout", tp.timeout)
	return nil
}

// OnStop joins running jobs. If ctx expires first the remaining jobs are
// killed and ctx's error is returned. The pool is released either way, and
// an OnApply still waiting for a slot fails with ErrClosed.
func (tp *TaskPool) OnStop(ctx context.Context) error {
	tp.mu.Lock()
	pool := tp.pool
	tp.pool = nil
	tp.mu.Unlock()

	if pool == nil {
		return nil
	}
	pool.Close()

	if err := pool.Join(ctx); err != nil {
		killed := pool.KillAll()
		tp.logger.Warn("task pool stop timed out, killed remaining jobs", "killed", killed)
		return gferrors.NewOperationError("taskpool", "stop", err).
			WithContext(fmt.Sprintf("killed %d jobs", killed))
	}
	tp.logger.Info("task pool stopped")
	return nil
}

// OnApply runs req.Target on a new unit and tracks it under the job id.
// It blocks while every slot is busy; ctx bounds that wait only.
func (tp *TaskPool) OnApply(ctx context.Context, req ApplyRequest) (*Job, error) {
	if req.Target == nil {
		return nil, validation.ValidateNotNil("taskpool", "Target", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tp.mu.Lock()
	pool := tp.pool
	tp.mu.Unlock()
	if pool == nil {
		return nil, fmt.Errorf("cannot apply job: %w", gferrors.ErrNotStarted)
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = tp.timeout
	}

	apply := ApplyArgs{
		Target:         makeKillableTarget(req.Target),
		Args:           req.Args,
		Kwargs:         req.Kwargs,
		Callback:       req.Callback,
		AcceptCallback: req.AcceptCallback,
		GetPID:         tp.getPID,
	}
	applyTarget := req.ApplyTarget
	if applyTarget == nil {
		applyTarget = ApplyDirectly
	}

	body := func(uctx context.Context) (any, error) {
		if timeout > 0 {
			return nil, ApplyTimeout(uctx, TimeoutCall{
				ApplyArgs:       apply,
				Timeout:         timeout,
				TimeoutCallback: req.TimeoutCallback,
				ApplyTarget:     applyTarget,
			})
		}
		return nil, applyTarget(uctx, apply)
	}

	u, err := pool.Spawn(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("cannot apply job %s: %w", jobID, err)
	}

	// Stored before linking so a job that already finished is cleaned up.
	tp.mu.Lock()
	tp.jobs[jobID] = u
	tp.mu.Unlock()

	u.Link(func(u unit.Unit) {
		tp.mu.Lock()
		cleanupAfterJobFinish(u, tp.jobs, jobID)
		tp.mu.Unlock()

		if _, err := u.Result(); err != nil && !unit.IsKilled(nil, err) {
			tp.logger.Warn("job failed", "job_id", jobID, "error", err)
		} else {
			tp.logger.Debug("job finished", "job_id", jobID)
		}
	})

	tp.logger.Debug("job applied", "job_id", jobID, "timeout", timeout)
	return &Job{ID: jobID, Unit: u}, nil
}

// Grow adds n slots and n free slots in one step.
func (tp *TaskPool) Grow(n int) error {
	if n <= 0 {
		n = 1
	}
	pool, err := tp.started("grow")
	if err != nil {
		return err
	}
	pool.Grow(n)
	tp.logger.Info("task pool grown", "by", n, "size", pool.Size())
	return nil
}

// Shrink removes n slots and n free slots in one step. Shrinking below one
// slot fails and leaves the pool unchanged.
func (tp *TaskPool) Shrink(n int) error {
	if n <= 0 {
		n = 1
	}
	pool, err := tp.started("shrink")
	if err != nil {
		return err
	}
	if err := pool.Shrink(n); err != nil {
		return err
	}
	tp.logger.Info("task pool shrunk", "by", n, "size", pool.Size())
	return nil
}

func (tp *TaskPool) started(op string) (*unit.BoundedPool, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.pool == nil {
		return nil, fmt.Errorf("cannot %s task pool: %w", op, gferrors.ErrNotStarted)
	}
	return tp.pool, nil
}

// NumProcesses returns the number of units the pool is running, not its size.
func (tp *TaskPool) NumProcesses() int {
	tp.mu.Lock()
	pool := tp.pool
	tp.mu.Unlock()
	if pool == nil {
		return 0
	}
	return pool.Len()
}

// TerminateJob kills the unit tracked under jobID. A missing id and a job
// that already finished are both ignored.
func (tp *TaskPool) TerminateJob(jobID string, sig os.Signal) {
	tp.mu.Lock()
	u, ok := tp.jobs[jobID]
	tp.mu.Unlock()
	if !ok {
		return
	}

	res := u.Kill()
	tp.logger.Debug("job terminated", "job_id", jobID, "signal", signalName(sig), "result", res)
}

// Stats returns a consistent view of size and free slots plus job counts.
func (tp *TaskPool) Stats() Stats {
	tp.mu.Lock()
	pool := tp.pool
	jobs := len(tp.jobs)
	tp.mu.Unlock()

	st := Stats{Name: tp.name, Jobs: jobs, Timeout: tp.timeout}
	if pool != nil {
		st.Size, st.Free = pool.Capacity()
		st.Running = pool.Len()
	}
	return st
}

// Jobs returns the tracked job ids in sorted order.
func (tp *TaskPool) Jobs() []string {
	tp.mu.Lock()
	ids := make([]string, 0, len(tp.jobs))
	for id := range tp.jobs {
		ids = append(ids, id)
	}
	tp.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// makeKillableTarget turns the kill interruption into the Reply{} sentinel
// so termination reaches Callback like any other reply.
func makeKillableTarget(target Target) Target {
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		value, err := target(ctx, args, kwargs)
		if unit.IsKilled(ctx, err) {
			return Reply{}, nil
		}
		return value, err
	}
}

// cleanupAfterJobFinish drops jobID from jobs if it still refers to u.
func cleanupAfterJobFinish(u unit.Unit, jobs map[string]unit.Unit, jobID string) {
	if cur, ok := jobs[jobID]; ok && cur == u {
		delete(jobs, jobID)
	}
}

func signalName(sig os.Signal) string {
	if sig == nil {
		return "none"
	}
	return sig.String()
}
