/*
Package scheduling groups the execution primitives greenpool is built from.

  - unit: a single lightweight task that can be killed and linked
  - semaphore: a resizable slot counter
  - timer: callbacks run after a delay, each on its own unit
  - taskpool: a bounded, resizable pool of jobs tracked by id

Units are the only thing that runs code. The timer spawns one per entry
and the task pool spawns one per job through a unit.BoundedPool, so
killing, linking and leak checks work the same way everywhere.

	rt := unit.NewRuntime()

	u := rt.Spawn(ctx, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	u.Link(func(u unit.Unit) { log.Println("finished") })
	u.Kill()
*/
package scheduling
