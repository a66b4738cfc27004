/*
Package semaphore provides the resizable slot counter behind the bounded
unit pool.

A Semaphore tracks a size and a counter of free slots. Holders take a slot
with Acquire (blocking, context aware) or TryAcquire and give it back with
Release. Grow and Shrink move size and counter together in one critical
section:

	sem, _ := semaphore.New(1)
	sem.Grow(1)   // size 2, counter 2
	sem.Shrink(1) // size 1, counter 1

Shrinking while slots are held drives the counter negative; new holders
wait until enough slots are released to bring it above zero again.
Shrinking below one slot returns a validation error.
*/
package semaphore
