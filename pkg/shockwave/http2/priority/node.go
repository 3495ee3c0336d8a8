package priority

import "math"

const (
	// MinWeight and MaxWeight bound a stream's priority weight
	// (RFC 7540 Section 5.3.2: weight is an 8-bit value, 1-256).
	MinWeight = 1
	MaxWeight = 256

	// DefaultWeight is assigned to a node with no explicit weight.
	DefaultWeight = 16

	// depthUnparented marks a node with no parent (only the root has
	// none once attached; a lazily-created node starts here).
	depthUnparented = math.MaxInt32
)

// Node is the per-stream scheduling state described by the dependency
// tree: one per live-or-priority-only stream, including the connection
// root (stream id 0).
type Node struct {
	streamID  uint32
	streamRef any

	weight int32
	parent *Node
	// children is nil until the first child is attached.
	children map[uint32]*Node

	streamableBytes int64
	active          bool
	distributing    bool

	// streamActivatedOrReserved is sticky: once true, stays true for
	// the life of the node.
	streamActivatedOrReserved bool

	// depth is distance from root; depthUnparented for a parentless
	// non-root node.
	depth int32

	activeCountForTree int64

	pseudoTime        int64
	pseudoTimeToWrite int64

	totalQueuedWeights int64
	pseudoTimeQueue    *IndexedMinHeap[*Node]

	// parentIdx is this node's slot within its parent's
	// pseudoTimeQueue; -1 when not enqueued there.
	parentIdx int
	// retentionIdx is this node's slot within the distributor's
	// state-only retention heap; -1 when not retained.
	retentionIdx int
}

func newNode(streamID uint32) *Node {
	return resetNode(&Node{}, streamID)
}

// resetNode restores n to the state of a freshly created, unparented
// node for streamID, clearing every field a prior tenant may have left
// behind. Used both by newNode and by the distributor's node pool,
// where n may be a recycled struct pulled off a PerCPUPools shard.
func resetNode(n *Node, streamID uint32) *Node {
	for id := range n.children {
		delete(n.children, id)
	}
	n.streamID = streamID
	n.streamRef = nil
	n.weight = DefaultWeight
	n.parent = nil
	n.streamableBytes = 0
	n.active = false
	n.distributing = false
	n.streamActivatedOrReserved = false
	n.depth = depthUnparented
	n.activeCountForTree = 0
	n.pseudoTime = 0
	n.pseudoTimeToWrite = 0
	n.totalQueuedWeights = 0
	n.pseudoTimeQueue = nil
	n.parentIdx = -1
	n.retentionIdx = -1
	return n
}

// StreamID returns the HTTP/2 stream identifier this node represents
// (0 is the connection root).
func (n *Node) StreamID() uint32 { return n.streamID }

// StreamRef returns the live stream object attached to this node, or
// nil for a priority-only (retained) or closed node.
func (n *Node) StreamRef() any { return n.streamRef }

// SetStreamRef attaches or clears the live stream object for this
// node.
func (n *Node) SetStreamRef(ref any) { n.streamRef = ref }

// Weight returns the node's current scheduling weight.
func (n *Node) Weight() int32 { return n.weight }

// Active reports whether the node is currently eligible to receive
// bytes (has pending data and non-negative flow-control window).
func (n *Node) Active() bool { return n.active }

// Parent returns the node's current parent, or nil for the root or a
// detached (not-yet-attached) node.
func (n *Node) Parent() *Node { return n.parent }

func clampWeight(w int32) int32 {
	switch {
	case w < MinWeight:
		return MinWeight
	case w > MaxWeight:
		return MaxWeight
	default:
		return w
	}
}

func getParentIdx(n *Node) int        { return n.parentIdx }
func setParentIdx(n *Node, idx int)   { n.parentIdx = idx }
func getRetentionIdx(n *Node) int     { return n.retentionIdx }
func setRetentionIdx(n *Node, idx int) { n.retentionIdx = idx }

func (n *Node) ensureQueue() {
	if n.pseudoTimeQueue == nil {
		n.pseudoTimeQueue = NewIndexedMinHeap(pseudoTimeLess, getParentIdx, setParentIdx)
	}
}

// isDescendantOf walks ancestor links in O(depth).
func (n *Node) isDescendantOf(ancestor *Node) bool {
	for p := n.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func snapshotChildren(n *Node) []*Node {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}
