package timer

import (
	"container/heap"
	"sort"
)

// entryHeap orders entries by deadline, then by insertion sequence.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	return before(h[i], h[j])
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func before(a, b *entry) bool {
	if !a.eta.Equal(b.eta) {
		return a.eta.Before(b.eta)
	}
	return a.seq < b.seq
}

// push adds e to the heap.
func (h *entryHeap) push(e *entry) {
	heap.Push(h, e)
}

// remove drops e if it is still queued and reports whether it was.
func (h *entryHeap) remove(e *entry) bool {
	if e.index < 0 || e.index >= len(*h) || (*h)[e.index] != e {
		return false
	}
	heap.Remove(h, e.index)
	return true
}

// sorted returns the queued entries in firing order without touching the heap.
func (h entryHeap) sorted() []*entry {
	out := make([]*entry, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}
