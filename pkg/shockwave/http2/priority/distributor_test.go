package priority

import "testing"

// recordingWriter captures every Write call in order, keyed by stream id.
type recordingWriter struct {
	calls []writeCall
}

type writeCall struct {
	streamID uint32
	n        int64
}

func (w *recordingWriter) Write(stream *Node, n int64) {
	w.calls = append(w.calls, writeCall{streamID: stream.StreamID(), n: n})
}

func (w *recordingWriter) totalFor(streamID uint32) int64 {
	var total int64
	for _, c := range w.calls {
		if c.streamID == streamID {
			total += c.n
		}
	}
	return total
}

// drainingWriter records like recordingWriter and also consumes the n
// bytes it is handed, reporting the stream's remaining bytes back to
// the distributor the way a codec honoring the Writer contract would.
type drainingWriter struct {
	recordingWriter
	d *Distributor
}

func (w *drainingWriter) Write(stream *Node, n int64) {
	w.recordingWriter.Write(stream, n)
	remaining := stream.streamableBytes - n
	w.d.UpdateStreamableBytes(stream.StreamID(), remaining, remaining > 0, int32(remaining))
}

func newTestDistributor(t *testing.T, quantum int32, retention int) *Distributor {
	t.Helper()
	d, err := NewDistributor(Config{AllocationQuantum: quantum, MaxStateOnlySize: retention})
	if err != nil {
		t.Fatalf("NewDistributor: %v", err)
	}
	return d
}

func addActiveStream(t *testing.T, d *Distributor, id uint32, bytes int64) {
	t.Helper()
	d.OnStreamAdded(id, nil, false)
	d.UpdateStreamableBytes(id, bytes, true, int32(bytes))
}

func TestDistributeEqualWeightsAlternate(t *testing.T) {
	d := newTestDistributor(t, 16, 5)
	addActiveStream(t, d, 1, 1_000_000)
	addActiveStream(t, d, 3, 1_000_000)

	w := &recordingWriter{}
	for i := 0; i < 20; i++ {
		d.Distribute(100, w)
	}

	a, b := w.totalFor(1), w.totalFor(3)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff > 100 {
		t.Errorf("equal-weight streams diverged: stream1=%d stream3=%d", a, b)
	}
}

func TestDistributeWeightRatioConverges(t *testing.T) {
	d := newTestDistributor(t, 16, 5)
	d.OnStreamAdded(1, nil, false)
	d.OnStreamAdded(3, nil, false)
	if err := d.UpdateDependencyTree(1, 0, 48, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}
	if err := d.UpdateDependencyTree(3, 0, 16, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}
	d.UpdateStreamableBytes(1, 1_000_000, true, 1<<30-1)
	d.UpdateStreamableBytes(3, 1_000_000, true, 1<<30-1)

	w := &recordingWriter{}
	for i := 0; i < 200; i++ {
		d.Distribute(100, w)
	}

	a, b := w.totalFor(1), w.totalFor(3)
	if b == 0 {
		t.Fatal("stream 3 never received any bytes")
	}
	ratio := float64(a) / float64(b)
	if ratio < 2.5 || ratio > 3.5 {
		t.Errorf("weight ratio 48:16 should converge near 3:1, got %.2f (a=%d b=%d)", ratio, a, b)
	}
}

func TestDistributeBlockedParentStillServesActiveGrandchild(t *testing.T) {
	d := newTestDistributor(t, 16, 5)
	d.OnStreamAdded(1, nil, false) // A, direct child of root, inactive
	d.OnStreamAdded(3, nil, false) // B
	if err := d.UpdateDependencyTree(3, 1, 16, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}
	// A has no streamable bytes (never marked active); B does.
	d.UpdateStreamableBytes(3, 500, true, 500)

	w := &drainingWriter{d: d}
	stillActive := d.Distribute(1000, w)

	if got := w.totalFor(3); got != 500 {
		t.Errorf("B received %d bytes, want 500", got)
	}
	if stillActive {
		t.Error("Distribute() reported active work remaining after draining the only active stream")
	}
}

func TestUpdateDependencyTreeExclusiveReparent(t *testing.T) {
	d := newTestDistributor(t, 16, 10)
	d.OnStreamAdded(1, nil, false) // A
	d.OnStreamAdded(3, nil, false) // B
	d.OnStreamAdded(5, nil, false) // C
	d.OnStreamAdded(7, nil, false) // D, added after, not yet attached

	if err := d.UpdateDependencyTree(7, 0, DefaultWeight, true); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}

	root := d.Root()
	if len(root.children) != 1 || root.children[7] == nil {
		t.Fatalf("root.children = %v, want only D (7)", root.children)
	}
	dNode, _ := d.Lookup(7)
	for _, id := range []uint32{1, 3, 5} {
		n, ok := d.Lookup(id)
		if !ok {
			t.Fatalf("lookup(%d) missing", id)
		}
		if n.Parent() != dNode {
			t.Errorf("node %d parent = %v, want D", id, n.Parent())
		}
	}
}

func TestUpdateDependencyTreeCycleReversal(t *testing.T) {
	d := newTestDistributor(t, 16, 10)
	d.OnStreamAdded(1, nil, false) // A, under root
	d.OnStreamAdded(3, nil, false) // B
	if err := d.UpdateDependencyTree(3, 1, DefaultWeight, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}

	// root -> A -> B. Now make A depend on B: must reverse, not cycle.
	if err := d.UpdateDependencyTree(1, 3, DefaultWeight, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}

	aNode, _ := d.Lookup(1)
	bNode, _ := d.Lookup(3)
	root := d.Root()

	if bNode.Parent() != root {
		t.Errorf("B parent = %v, want root", bNode.Parent())
	}
	if aNode.Parent() != bNode {
		t.Errorf("A parent = %v, want B", aNode.Parent())
	}
}

func TestUpdateDependencyTreeIdempotent(t *testing.T) {
	d := newTestDistributor(t, 16, 10)
	d.OnStreamAdded(1, nil, false)
	d.OnStreamAdded(3, nil, false)

	if err := d.UpdateDependencyTree(3, 1, 32, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}
	before, _ := d.Lookup(3)
	beforeParent := before.Parent()
	beforeWeight := before.Weight()

	if err := d.UpdateDependencyTree(3, 1, 32, false); err != nil {
		t.Fatalf("UpdateDependencyTree (repeat): %v", err)
	}
	after, _ := d.Lookup(3)
	if after.Parent() != beforeParent || after.Weight() != beforeWeight {
		t.Errorf("repeating an identical UpdateDependencyTree changed state: parent %v->%v weight %d->%d",
			beforeParent, after.Parent(), beforeWeight, after.Weight())
	}
}

func TestUpdateDependencyTreeReparentsActiveNodeOutOfOldQueue(t *testing.T) {
	d := newTestDistributor(t, 16, 10)
	addActiveStream(t, d, 1, 1000)
	addActiveStream(t, d, 3, 1000)

	root := d.Root()
	node1, _ := d.Lookup(1)
	node3, _ := d.Lookup(3)

	if node1.parentIdx < 0 {
		t.Fatal("node 1 should already be seated in root's pseudoTimeQueue")
	}
	rootWeightBefore := root.totalQueuedWeights

	if err := d.UpdateDependencyTree(1, 3, DefaultWeight, false); err != nil {
		t.Fatalf("UpdateDependencyTree: %v", err)
	}

	if node1.Parent() != node3 {
		t.Fatalf("node 1 parent = %v, want node 3", node1.Parent())
	}
	for _, item := range root.pseudoTimeQueue.items {
		if item == node1 {
			t.Fatal("node 1 still seated in root's pseudoTimeQueue after reparenting")
		}
	}
	if got, want := root.totalQueuedWeights, rootWeightBefore-int64(node1.Weight()); got != want {
		t.Errorf("root.totalQueuedWeights = %d, want %d", got, want)
	}
	if node3.pseudoTimeQueue == nil || node3.pseudoTimeQueue.Len() != 1 {
		t.Fatalf("node 3's pseudoTimeQueue should now hold node 1, got %v", node3.pseudoTimeQueue)
	}
	if node3.totalQueuedWeights != int64(node1.Weight()) {
		t.Errorf("node3.totalQueuedWeights = %d, want %d", node3.totalQueuedWeights, node1.Weight())
	}

	w := &drainingWriter{d: d}
	d.Distribute(10000, w)
	if got := w.totalFor(1); got == 0 {
		t.Error("node 1 never received bytes through its new parent after reparenting")
	}
}

func TestRetentionEvictsWeakestStateOnlyNodes(t *testing.T) {
	d := newTestDistributor(t, 16, 2)

	for _, id := range []uint32{3, 5, 7, 9} {
		if err := d.UpdateDependencyTree(id, 0, DefaultWeight, false); err != nil {
			t.Fatalf("UpdateDependencyTree(%d): %v", id, err)
		}
	}

	remaining := map[uint32]bool{}
	for _, id := range []uint32{3, 5, 7, 9} {
		if _, ok := d.Lookup(id); ok {
			remaining[id] = true
		}
	}

	want := map[uint32]bool{9: true, 7: true}
	if len(remaining) != len(want) {
		t.Fatalf("retained set = %v, want %v", remaining, want)
	}
	for id := range want {
		if !remaining[id] {
			t.Errorf("expected id %d to survive eviction, got retained set %v", id, remaining)
		}
	}
}

func TestOnStreamRemovedDemotesToRetentionThenReAdd(t *testing.T) {
	d := newTestDistributor(t, 16, 5)
	node := d.OnStreamAdded(1, "streamA", false)
	if node.StreamRef() != "streamA" {
		t.Fatalf("StreamRef() = %v, want streamA", node.StreamRef())
	}

	d.OnStreamRemoved(1)
	n, ok := d.Lookup(1)
	if !ok {
		t.Fatal("node 1 should still exist as a state-only retained node")
	}
	if n.StreamRef() != nil {
		t.Errorf("StreamRef() after removal = %v, want nil", n.StreamRef())
	}

	// Re-adding must pick the retained node back up rather than orphan it.
	reattached := d.OnStreamAdded(1, "streamA2", false)
	if reattached != n {
		t.Error("OnStreamAdded should reuse the retained node for the same stream id")
	}
}

func TestOnStreamRemovedWithZeroRetentionDropsImmediately(t *testing.T) {
	d := newTestDistributor(t, 16, 0)
	d.OnStreamAdded(1, "streamA", false)
	d.OnStreamRemoved(1)

	if _, ok := d.Lookup(1); ok {
		t.Error("node should be gone entirely when MaxStateOnlySize is 0")
	}
}

func TestSetAllocationQuantumRejectsNonPositive(t *testing.T) {
	d := newTestDistributor(t, 16, 5)
	if err := d.SetAllocationQuantum(0); err != ErrInvalidAllocationQuantum {
		t.Errorf("SetAllocationQuantum(0) = %v, want ErrInvalidAllocationQuantum", err)
	}
	if err := d.SetAllocationQuantum(-5); err != ErrInvalidAllocationQuantum {
		t.Errorf("SetAllocationQuantum(-5) = %v, want ErrInvalidAllocationQuantum", err)
	}
	if err := d.SetAllocationQuantum(64); err != nil {
		t.Errorf("SetAllocationQuantum(64) = %v, want nil", err)
	}
}
