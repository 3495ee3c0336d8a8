package priority

// parentChangedEvent records that child's parent changed away from
// oldParent (nil if child previously had no parent at all).
type parentChangedEvent struct {
	child     *Node
	oldParent *Node
}

// propagateActiveCountDelta adds delta to node's activeCountForTree and
// every ancestor's, maintaining invariant I3 as nodes are reparented or
// flip active state. It is the single place both takeChild/removeChild
// (old-ancestor-chain subtraction) and notifyParentChanged
// (new-ancestor-chain addition) route through.
func propagateActiveCountDelta(node *Node, delta int64) {
	for n := node; n != nil; n = n.parent {
		n.activeCountForTree += delta
	}
}

// unlinkFromParent detaches child from its current parent (if any),
// correcting the old ancestor chain's active-subtree counts and, if
// child was currently seated in old's pseudoTimeQueue, pulling it back
// out and subtracting its weight — mirroring the transition-to-zero
// branch of activeCountChangeForTree so a reparented child never stays
// queued under a parent it no longer belongs to.
func unlinkFromParent(child *Node) {
	old := child.parent
	if old == nil {
		return
	}
	delete(old.children, child.streamID)
	if child.activeCountForTree > 0 {
		propagateActiveCountDelta(old, -child.activeCountForTree)
	}
	if child.parentIdx >= 0 {
		old.pseudoTimeQueue.Remove(child)
		old.totalQueuedWeights -= int64(child.weight)
	}
	child.parent = nil
}

// takeChild makes child a child of parent (nil parent just detaches
// it), honoring exclusive dependency: every other current child of
// parent becomes a descendant of child instead. Appends one
// parentChangedEvent per node whose parent pointer actually moves.
//
// If parent == child.parent and not exclusive, this is a no-op —
// matching the non-exclusive idempotency law. An exclusive call always
// proceeds even when the parent is unchanged, since it must still pull
// any newly-arrived siblings underneath child.
func takeChild(parent, child *Node, exclusive bool, events *[]parentChangedEvent) {
	if parent == child.parent && !exclusive {
		return
	}

	oldParent := child.parent
	*events = append(*events, parentChangedEvent{child: child, oldParent: oldParent})

	unlinkFromParent(child)

	child.parent = parent
	if parent != nil {
		child.depth = parent.depth + 1
		if parent.children == nil {
			parent.children = make(map[uint32]*Node)
		}
		parent.children[child.streamID] = child
	} else {
		child.depth = depthUnparented
	}

	if exclusive && parent != nil {
		for _, sibling := range snapshotChildren(parent) {
			if sibling == child {
				continue
			}
			takeChild(child, sibling, false, events)
		}
	}
}

// removeChild removes child from self's children, re-parenting all of
// child's own children onto self. Returns one event per node whose
// parent pointer moved (child itself, plus each reparented
// grandchild).
func removeChild(self, child *Node) []parentChangedEvent {
	var events []parentChangedEvent

	unlinkFromParent(child)
	events = append(events, parentChangedEvent{child: child, oldParent: self})
	child.depth = depthUnparented

	for _, grandchild := range snapshotChildren(child) {
		takeChild(self, grandchild, false, &events)
	}

	return events
}
