/*
Package taskpool runs jobs for a task-execution framework on a bounded pool
of lightweight units.

The host framework drives the pool through a small lifecycle: OnStart
allocates capacity, OnApply runs a job, TerminateJob kills one by id, Grow
and Shrink resize the pool while it runs, and OnStop drains it.

	pool, err := taskpool.New(taskpool.Config{Concurrency: 100, Timeout: time.Minute})
	if err != nil {
		return err
	}
	if err := pool.OnStart(); err != nil {
		return err
	}
	defer pool.OnStop(context.Background())

	job, err := pool.OnApply(ctx, taskpool.ApplyRequest{
		Target: fetch,
		Args:   []any{"https://example.com"},
		Callback: func(r taskpool.Reply) {
			log.Println("done:", r.Completed, r.Value, r.Err)
		},
		TimeoutCallback: func(completed bool, timeout time.Duration) {
			log.Println("timed out after", timeout)
		},
	})

# Replies

Every job that starts reports exactly once: either Callback receives a
Reply, or TimeoutCallback fires because the job outlived its timeout. A
job killed through TerminateJob or OnStop reports the zero Reply, whose
Completed field is false. A job killed before it started reports nothing.

# Capacity

Grow and Shrink change the pool size and its free-slot counter together,
so a reader never sees one without the other. Shrinking does not interrupt
running jobs; the free-slot counter may go negative until they finish.
The pool never shrinks below one slot.

# Cancellation

Units are goroutines, so a kill is delivered through the target's context.
Targets should watch ctx.Done() and return promptly.

# Metrics

NewWithMetrics and Instrument wrap a pool in a MetricsPool that exports
Prometheus gauges for size, free slots and running jobs, and counters for
applied, completed, failed, terminated and timed-out jobs.
*/
package taskpool
