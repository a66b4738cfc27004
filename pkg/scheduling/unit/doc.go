/*
Package unit provides schedulable units: lightweight tasks that can be
spawned now or later, linked to a completion callback, and killed.

A Runtime spawns units. The default runtime runs each unit on a goroutine
and delivers Kill as cancellation of the unit's context, so a body is
interrupted the next time it checks ctx.Done():

	rt := unit.NewRuntime()
	u := rt.Spawn(ctx, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Minute):
			return "done", nil
		case <-ctx.Done():
			return nil, context.Cause(ctx) // unit.ErrKilled after Kill
		}
	})
	u.Link(func(u unit.Unit) { log.Printf("unit %d finished", u.ID()) })
	u.Kill()

Kill never fails. It returns Killed for a live unit and AlreadyFinished
once the body has returned. Links fire exactly once, after the body returns
or the kill lands, on the unit's own goroutine.

BoundedPool caps the number of live units with a resizable semaphore;
Spawn waits for a free slot and a finished unit gives its slot back.
*/
package unit
