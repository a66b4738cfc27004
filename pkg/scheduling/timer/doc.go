/*
Package timer schedules callbacks to run after a delay, each on its own unit.

Every entry is spawned as a delayed unit the moment it is entered, so the
timer needs no dispatcher loop. The timer keeps two indexes over its
entries: a deadline-ordered queue, exposed read-only through Queue, and an
in-flight set used by Clear to kill everything still pending or running.
Both indexes forget an entry as soon as its unit finishes.

Basic usage:

	t := timer.New()
	defer t.Stop()

	t.CallAfter(5*time.Second, func(ctx context.Context, args ...any) error {
		fmt.Println("fired with", args)
		return nil
	}, "job-42")

Repeating schedules:

	ref, _ := t.CallRepeatedly(time.Minute, heartbeat)
	defer ref.Cancel()

	nightly, _ := t.CallCron("0 2 * * *", compact)
	defer nightly.Cancel()

Entries with equal deadlines fire in the order they were entered. Clear is
safe to call while entries are firing; a unit that finishes during the
clear is skipped without error.
*/
package timer
