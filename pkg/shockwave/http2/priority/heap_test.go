package priority

import "testing"

type heapItem struct {
	key int
	idx int
}

func lessByKey(a, b *heapItem) bool { return a.key < b.key }
func getIdx(i *heapItem) int        { return i.idx }
func setIdx(i *heapItem, idx int)   { i.idx = idx }

func newTestHeap() *IndexedMinHeap[*heapItem] {
	return NewIndexedMinHeap(lessByKey, getIdx, setIdx)
}

func TestIndexedMinHeapEnqueuePoll(t *testing.T) {
	h := newTestHeap()
	items := []*heapItem{{key: 5, idx: -1}, {key: 1, idx: -1}, {key: 3, idx: -1}, {key: 2, idx: -1}, {key: 4, idx: -1}}
	for _, it := range items {
		h.Enqueue(it)
	}

	var got []int
	for h.Len() > 0 {
		v, ok := h.Poll()
		if !ok {
			t.Fatal("Poll() returned false with items remaining")
		}
		got = append(got, v.key)
	}

	want := []int{1, 2, 3, 4, 5}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("poll order[%d] = %d, want %d", i, got[i], w)
		}
	}
}

func TestIndexedMinHeapPeekDoesNotRemove(t *testing.T) {
	h := newTestHeap()
	h.Enqueue(&heapItem{key: 10, idx: -1})
	h.Enqueue(&heapItem{key: 2, idx: -1})

	v, ok := h.Peek()
	if !ok || v.key != 2 {
		t.Fatalf("Peek() = %v, %v, want key 2", v, ok)
	}
	if h.Len() != 2 {
		t.Errorf("Peek() removed an element, Len() = %d, want 2", h.Len())
	}
}

func TestIndexedMinHeapRemoveByElement(t *testing.T) {
	h := newTestHeap()
	a := &heapItem{key: 1, idx: -1}
	b := &heapItem{key: 2, idx: -1}
	c := &heapItem{key: 3, idx: -1}
	h.Enqueue(a)
	h.Enqueue(b)
	h.Enqueue(c)

	h.Remove(b)
	if b.idx != -1 {
		t.Errorf("removed element idx = %d, want -1", b.idx)
	}
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}

	v, _ := h.Poll()
	if v != a {
		t.Errorf("poll after remove = key %d, want 1", v.key)
	}
}

func TestIndexedMinHeapRemoveAbsentIsNoop(t *testing.T) {
	h := newTestHeap()
	a := &heapItem{key: 1, idx: -1}
	h.Remove(a) // never enqueued
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestIndexedMinHeapPriorityChanged(t *testing.T) {
	h := newTestHeap()
	a := &heapItem{key: 5, idx: -1}
	b := &heapItem{key: 10, idx: -1}
	h.Enqueue(a)
	h.Enqueue(b)

	a.key = 20
	h.PriorityChanged(a)

	v, _ := h.Poll()
	if v != b {
		t.Errorf("poll after PriorityChanged = key %d, want 10", v.key)
	}
}

func TestIndexedMinHeapNoDuplicateIndicesAfterChurn(t *testing.T) {
	h := newTestHeap()
	var items []*heapItem
	for i := 0; i < 20; i++ {
		it := &heapItem{key: 20 - i, idx: -1}
		items = append(items, it)
		h.Enqueue(it)
	}

	// Remove every other element, then poll the rest in order.
	for i, it := range items {
		if i%2 == 0 {
			h.Remove(it)
		}
	}

	last := -1
	for h.Len() > 0 {
		v, _ := h.Poll()
		if v.key < last {
			t.Fatalf("poll order violated: got %d after %d", v.key, last)
		}
		last = v.key
	}
}
