package priority

import "github.com/yourusername/shockwave/pkg/shockwave"

const (
	int32Max = int64(1<<31 - 1)
	int32Min = -int64(1 << 31)
)

// Writer is the single call-out a Distributor makes while distributing
// bytes. It SHOULD consume exactly n bytes and emit at least one frame
// for stream, possibly an empty one when n == 0.
type Writer interface {
	Write(stream *Node, n int64)
}

// Distributor holds the connection's priority dependency tree and
// drains a byte budget across it in proportion to each stream's
// weight. Not safe for concurrent use: every method runs on the
// connection's single serial executor.
type Distributor struct {
	root          *Node
	nodes         map[uint32]*Node
	retentionHeap *IndexedMinHeap[*Node]
	config        Config

	// nodePool recycles *Node structs across the add/remove churn of a
	// busy connection instead of letting every stream open or close
	// allocate and discard one.
	nodePool *shockwave.PerCPUPools[*Node]
}

// NewDistributor constructs a distributor rooted at stream id 0 with
// the given configuration.
func NewDistributor(config Config) (*Distributor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	root := newNode(0)
	root.depth = 0

	d := &Distributor{
		root:   root,
		nodes:  map[uint32]*Node{0: root},
		config: config,
	}
	d.retentionHeap = NewIndexedMinHeap(stateOnlyLess, getRetentionIdx, setRetentionIdx)
	d.nodePool = shockwave.NewPerCPUPools(func() *Node { return &Node{} })
	return d, nil
}

// acquireNode leases a node struct from the pool and resets it for
// streamID rather than allocating a fresh one.
func (d *Distributor) acquireNode(streamID uint32) *Node {
	return resetNode(d.nodePool.Get(), streamID)
}

// releaseNode returns a node that has been fully unlinked from the
// tree and dropped from d.nodes back to the pool.
func (d *Distributor) releaseNode(n *Node) {
	n.streamRef = nil
	d.nodePool.Put(n)
}

// Root returns the connection root node (stream id 0).
func (d *Distributor) Root() *Node { return d.root }

// Lookup returns the node for streamID, if one exists (live, or
// state-only retained).
func (d *Distributor) Lookup(streamID uint32) (*Node, bool) {
	n, ok := d.nodes[streamID]
	return n, ok
}

// SetAllocationQuantum updates the minimum per-step byte allotment.
// Returns ErrInvalidAllocationQuantum and leaves the quantum unchanged
// if q <= 0.
func (d *Distributor) SetAllocationQuantum(q int32) error {
	if q <= 0 {
		return ErrInvalidAllocationQuantum
	}
	d.config.AllocationQuantum = q
	return nil
}

// ---- node resolution -------------------------------------------------

func (d *Distributor) resolveOrCreate(id uint32) *Node {
	if n, ok := d.nodes[id]; ok {
		return n
	}
	n := d.acquireNode(id)
	d.nodes[id] = n
	if d.config.MaxStateOnlySize > 0 {
		d.retentionHeap.Enqueue(n)
	}
	return n
}

// ---- active-subtree bookkeeping --------------------------------------

// activeCountChangeForTree walks up from node (inclusive), adding delta
// to each ancestor's activeCountForTree. At each step, a node whose
// count transitions across zero is enqueued into or removed from its
// own parent's pseudo-time queue — unless it is currently the node
// being serviced by that parent (the distributing guard), in which
// case step 7 of distributeToChildren re-seats it once service
// completes.
func (d *Distributor) activeCountChangeForTree(node *Node, delta int64) {
	for n := node; n != nil; n = n.parent {
		before := n.activeCountForTree
		n.activeCountForTree += delta
		after := n.activeCountForTree

		parent := n.parent
		if parent == nil {
			continue
		}

		switch {
		case before <= 0 && after > 0 && !n.distributing:
			d.offerAndInitializePseudoTime(parent, n)
		case before > 0 && after <= 0 && n.parentIdx >= 0:
			parent.pseudoTimeQueue.Remove(n)
			parent.totalQueuedWeights -= int64(n.weight)
		}
	}
}

// offerAndInitializePseudoTime seats child into parent's pseudo-time
// queue at parent's current pseudo-time, per spec: a newly-eligible
// child starts even with its parent's clock rather than wherever its
// stale pseudoTimeToWrite last pointed. No-op if child is already
// enqueued.
func (d *Distributor) offerAndInitializePseudoTime(parent, child *Node) {
	if child.parentIdx >= 0 {
		return
	}
	parent.ensureQueue()
	child.pseudoTimeToWrite = parent.pseudoTime
	parent.pseudoTimeQueue.Enqueue(child)
	parent.totalQueuedWeights += int64(child.weight)
}

// reenqueueServicedChild re-seats child into parent's pseudo-time queue
// after a distributeToChildren service turn, preserving the deadline
// already advanced by that turn's pseudoTimeToWrite update. Unlike
// offerAndInitializePseudoTime, it must NOT reset pseudoTimeToWrite to
// the parent's current clock — that would discard the weighted
// advancement (sent*W/weight) step 6 just computed, collapsing every
// serviced child's virtual finish time back to the parent's clock on
// every single turn.
func (d *Distributor) reenqueueServicedChild(parent, child *Node) {
	if child.parentIdx >= 0 {
		return
	}
	parent.ensureQueue()
	parent.pseudoTimeQueue.Enqueue(child)
	parent.totalQueuedWeights += int64(child.weight)
}

// ---- notification -----------------------------------------------------

func (d *Distributor) notifyParentChanged(events []parentChangedEvent) {
	for _, ev := range events {
		child := ev.child
		if child.retentionIdx >= 0 {
			d.retentionHeap.PriorityChanged(child)
		}
		if child.parent != nil && child.activeCountForTree > 0 {
			d.offerAndInitializePseudoTime(child.parent, child)
			propagateActiveCountDelta(child.parent, child.activeCountForTree)
		}
	}
}

// ---- public API --------------------------------------------------------

// UpdateStreamableBytes folds a per-stream write-readiness update: n is
// the number of bytes the stream currently has ready to send, already
// clamped to its flow-control window by the caller. The stream is
// active iff hasFrame is true and window is non-negative.
func (d *Distributor) UpdateStreamableBytes(streamID uint32, n int64, hasFrame bool, window int32) {
	node, ok := d.nodes[streamID]
	if !ok {
		return
	}

	isActive := hasFrame && window >= 0
	if isActive != node.active {
		delta := int64(1)
		if !isActive {
			delta = -1
		}
		d.activeCountChangeForTree(node, delta)
		node.active = isActive
	}
	node.streamableBytes = n
}

// UpdateDependencyTree applies a PRIORITY frame (or HEADERS-carried
// priority): child becomes dependent on parent with the given weight
// and exclusivity. Unknown stream ids are lazily created as
// priority-only nodes and registered for retention, unless
// MaxStateOnlySize is 0, in which case an update naming an unknown id
// is dropped silently.
func (d *Distributor) UpdateDependencyTree(childID, parentID uint32, weight int32, exclusive bool) error {
	if d.config.MaxStateOnlySize == 0 {
		_, childKnown := d.nodes[childID]
		_, parentKnown := d.nodes[parentID]
		if !childKnown || !parentKnown {
			return nil
		}
	}

	child := d.resolveOrCreate(childID)
	parent := d.resolveOrCreate(parentID)
	weight = clampWeight(weight)

	if child.activeCountForTree > 0 && child.parent != nil {
		child.parent.totalQueuedWeights += int64(weight) - int64(child.weight)
	}
	child.weight = weight

	parentChanging := child.parent != parent
	exclusiveWithSiblings := exclusive && parent != nil && len(parent.children) > 1
	if parentChanging || exclusiveWithSiblings {
		var events []parentChangedEvent
		if parent != nil && parent.isDescendantOf(child) {
			// Cycle: parent currently depends on child. Lift parent
			// out from under child first, onto child's own (former)
			// parent, before attaching child under parent.
			takeChild(child.parent, parent, false, &events)
		}
		takeChild(parent, child, exclusive, &events)
		d.notifyParentChanged(events)
	}

	d.shrinkRetention()
	return nil
}

func (d *Distributor) shrinkRetention() {
	for d.retentionHeap.Len() > d.config.MaxStateOnlySize {
		v, ok := d.retentionHeap.Poll()
		if !ok {
			break
		}
		if v.parent != nil {
			events := removeChild(v.parent, v)
			d.notifyParentChanged(events)
		}
		delete(d.nodes, v.streamID)
		d.releaseNode(v)
	}
}

// Distribute drains up to maxBytes across the tree via writer,
// returning whether any stream remains active. With at least one
// active node and maxBytes == 0, it still invokes writer.Write with
// n == 0 for a selected branch rather than returning immediately,
// giving codecs a chance to emit an empty frame when the budget runs
// out mid-connection.
func (d *Distributor) Distribute(maxBytes int64, writer Writer) bool {
	if d.root.activeCountForTree == 0 {
		return false
	}

	budget := maxBytes
	var totalSent int64
	for {
		old := d.root.activeCountForTree
		sent := d.distributeToChildren(budget, writer, d.root)
		totalSent += sent
		budget -= sent
		if d.root.activeCountForTree == 0 {
			break
		}
		if budget <= 0 && d.root.activeCountForTree == old {
			break
		}
	}

	d.observeDistribute(totalSent)
	return d.root.activeCountForTree != 0
}

func (d *Distributor) distribute(maxBytes int64, writer Writer, node *Node) int64 {
	if node.active {
		n := node.streamableBytes
		if maxBytes < n {
			n = maxBytes
		}
		writer.Write(node, n)
		if n == 0 && maxBytes != 0 {
			// Stop blocking siblings: this stream had nothing to send
			// even though it was handed a non-zero quota.
			d.UpdateStreamableBytes(node.streamID, node.streamableBytes, false, 0)
		}
		return n
	}
	return d.distributeToChildren(maxBytes, writer, node)
}

func (d *Distributor) distributeToChildren(maxBytes int64, writer Writer, node *Node) (sent int64) {
	if node.pseudoTimeQueue == nil || node.pseudoTimeQueue.Len() == 0 {
		return 0
	}

	w := node.totalQueuedWeights

	child, ok := node.pseudoTimeQueue.Poll()
	if !ok {
		return 0
	}
	node.totalQueuedWeights -= int64(child.weight)
	next, hasNext := node.pseudoTimeQueue.Peek()

	child.distributing = true
	defer func() {
		child.distributing = false
		if child.activeCountForTree > 0 {
			d.reenqueueServicedChild(node, child)
		}
	}()

	var quota int64
	if !hasNext {
		quota = maxBytes
	} else {
		delta := next.pseudoTimeToWrite - child.pseudoTimeToWrite
		alloc := delta*int64(child.weight)/w + int64(d.config.AllocationQuantum)
		quota = min64(maxBytes, clampToInt32(alloc))
	}

	sent = d.distribute(quota, writer, child)

	node.pseudoTime += sent
	deadline := child.pseudoTimeToWrite
	if node.pseudoTime < deadline {
		deadline = node.pseudoTime
	}
	if w != 0 {
		deadline += sent * w / int64(child.weight)
	}
	child.pseudoTimeToWrite = deadline

	return sent
}

func clampToInt32(v int64) int64 {
	if v > int32Max {
		return int32Max
	}
	if v < int32Min {
		return int32Min
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ---- stream lifecycle ---------------------------------------------------

// OnStreamAdded attaches streamRef to streamID's node, creating one as
// a direct (non-exclusive) child of the root if none existed yet
// (e.g. no PRIORITY frame ever named this stream). If reserved is
// true, the sticky activated-or-reserved flag is set.
func (d *Distributor) OnStreamAdded(streamID uint32, streamRef any, reserved bool) *Node {
	node, existed := d.nodes[streamID]
	if existed {
		if node.retentionIdx >= 0 {
			d.retentionHeap.Remove(node)
		}
	} else {
		node = d.acquireNode(streamID)
		d.nodes[streamID] = node
		var events []parentChangedEvent
		takeChild(d.root, node, false, &events)
		d.notifyParentChanged(events)
	}

	node.streamRef = streamRef
	if reserved {
		node.streamActivatedOrReserved = true
	}
	return node
}

// OnStreamActive sets the sticky activated-or-reserved flag once a
// stream transitions to the ACTIVE state.
func (d *Distributor) OnStreamActive(streamID uint32) {
	if n, ok := d.nodes[streamID]; ok {
		n.streamActivatedOrReserved = true
	}
}

// OnStreamClosed marks streamID inactive and detaches its live stream
// reference, but keeps its place in the dependency tree (the node may
// still carry priority information other streams depend on).
func (d *Distributor) OnStreamClosed(streamID uint32) {
	node, ok := d.nodes[streamID]
	if !ok {
		return
	}
	d.UpdateStreamableBytes(streamID, 0, false, 0)
	node.streamRef = nil
}

// OnStreamRemoved clears streamID's live stream reference and either
// demotes the node to the state-only retention set or drops it from
// the tree entirely, depending on retention capacity and how the
// departing node ranks against the weakest currently-retained node.
func (d *Distributor) OnStreamRemoved(streamID uint32) {
	node, ok := d.nodes[streamID]
	if !ok {
		return
	}
	node.streamRef = nil

	if d.config.MaxStateOnlySize == 0 {
		d.detachFromTree(node)
		delete(d.nodes, streamID)
		d.releaseNode(node)
		return
	}

	if d.retentionHeap.Len() >= d.config.MaxStateOnlySize {
		weakest, ok := d.retentionHeap.Peek()
		if ok && stateOnlyLess(node, weakest) {
			// weakest still outranks the departing node: drop node,
			// keep weakest in place.
			d.detachFromTree(node)
			delete(d.nodes, streamID)
			d.releaseNode(node)
			return
		}
		if ok {
			d.retentionHeap.Poll()
			d.detachFromTree(weakest)
			delete(d.nodes, weakest.streamID)
			d.releaseNode(weakest)
		}
	}

	d.retentionHeap.Enqueue(node)
}

func (d *Distributor) detachFromTree(node *Node) {
	if node.parent == nil {
		return
	}
	events := removeChild(node.parent, node)
	d.notifyParentChanged(events)
}
