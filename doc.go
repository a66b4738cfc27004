/*
Package greenpool provides a cooperative task pool for Go: jobs run on
lightweight units, can be bounded by timeouts, terminated by id, and the
pool can be resized while it runs.

Scheduling (pkg/scheduling):
  - unit: Schedulable units with kill and link-on-finish, plus a bounded pool
  - semaphore: Resizable counting semaphore backing the bounded pool
  - timer: Deferred callbacks, repeating and cron schedules
  - taskpool: Job pool with timeouts, termination, resizing and metrics

Supporting packages:
  - control: Job revokes over Redis pub/sub
  - config: YAML configuration for the greenpool daemon
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/greenpool/pkg/scheduling/taskpool"
		"github.com/vnykmshr/greenpool/pkg/scheduling/timer"
	)

	pool, _ := taskpool.New(taskpool.Config{Concurrency: 100, Timeout: time.Minute})
	pool.OnStart()
	defer pool.OnStop(ctx)

	retries := timer.New()
	defer retries.Stop()

	pool.OnApply(ctx, taskpool.ApplyRequest{
		Target:   fetch,
		Callback: func(r taskpool.Reply) {
			if r.Err != nil {
				retries.CallAfter(time.Second, resubmit)
			}
		},
	})
*/
package greenpool
