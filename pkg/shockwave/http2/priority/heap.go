// Package priority implements the RFC 7540 Section 5.3 stream priority
// dependency tree and the weighted-fair-queueing byte distributor that
// walks it. Modeled on Linux's CFS scheduler, but allocating bytes
// instead of CPU time.
package priority

import "container/heap"

// IndexedMinHeap is a binary min-heap keyed by an injected comparator,
// built on container/heap so sift-up/down reuse the standard library's
// tested algorithm. Its intrusive contract: every element reports and
// records its own slot index within this heap's identity via
// getIndex/setIndex, which lets Remove and PriorityChanged run in
// O(log n) from a stored index rather than a linear scan.
//
// A heap never holds two copies of the same element; callers must not
// Enqueue an element that getIndex already reports as present
// (index != -1).
type IndexedMinHeap[T any] struct {
	items    []T
	less     func(a, b T) bool
	getIndex func(item T) int
	setIndex func(item T, idx int)
}

// NewIndexedMinHeap builds an empty heap. less must implement a strict
// weak ordering over T; getIndex/setIndex must read and write the same
// slot for the lifetime of this heap (an element participating in two
// heaps needs two independent slots, one per heap identity).
func NewIndexedMinHeap[T any](less func(a, b T) bool, getIndex func(T) int, setIndex func(T, int)) *IndexedMinHeap[T] {
	return &IndexedMinHeap[T]{less: less, getIndex: getIndex, setIndex: setIndex}
}

// Len implements heap.Interface.
func (h *IndexedMinHeap[T]) Len() int { return len(h.items) }

// Less implements heap.Interface.
func (h *IndexedMinHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }

// Swap implements heap.Interface, keeping each element's stored index
// in sync with its slice position.
func (h *IndexedMinHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.setIndex(h.items[i], i)
	h.setIndex(h.items[j], j)
}

// Push implements heap.Interface. Use Enqueue, not this directly.
func (h *IndexedMinHeap[T]) Push(x any) {
	item := x.(T)
	h.setIndex(item, len(h.items))
	h.items = append(h.items, item)
}

// Pop implements heap.Interface. Use Poll, not this directly.
func (h *IndexedMinHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero
	h.items = old[:n-1]
	h.setIndex(item, -1)
	return item
}

// Enqueue inserts item into the heap.
func (h *IndexedMinHeap[T]) Enqueue(item T) {
	heap.Push(h, item)
}

// Peek returns the minimum element without removing it, and false if
// the heap is empty.
func (h *IndexedMinHeap[T]) Peek() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return h.items[0], true
}

// Poll removes and returns the minimum element, and false if the heap
// is empty.
func (h *IndexedMinHeap[T]) Poll() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return heap.Pop(h).(T), true
}

// Remove removes item from the heap using its stored index. It is a
// no-op if item is not currently enqueued (index out of range).
func (h *IndexedMinHeap[T]) Remove(item T) {
	idx := h.getIndex(item)
	if idx < 0 || idx >= len(h.items) {
		return
	}
	heap.Remove(h, idx)
}

// PriorityChanged re-sifts item after its ordering key changed, without
// removing and re-inserting it. No-op if item is not currently
// enqueued.
func (h *IndexedMinHeap[T]) PriorityChanged(item T) {
	idx := h.getIndex(item)
	if idx < 0 || idx >= len(h.items) {
		return
	}
	heap.Fix(h, idx)
}
