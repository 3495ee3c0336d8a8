package priority

// pseudoTimeLess orders two children of the same parent by their next
// scheduling deadline (pseudoTimeToWrite). The subtraction is
// interpreted as a signed difference rather than compared directly, so
// that pseudoTime counters that grow without bound for the life of a
// long-running connection tolerate wraparound the same way TCP
// sequence numbers do: only the sign of the difference matters, not
// the magnitude.
func pseudoTimeLess(a, b *Node) bool {
	diff := a.pseudoTimeToWrite - b.pseudoTimeToWrite
	return diff < 0
}

// stateOnlyLess orders nodes in the state-only retention heap. The
// heap's minimum is the first node evicted once the retention set
// exceeds its configured size, so "less" here means "more disposable":
//
//   - a node that was ever RESERVED or ACTIVE is more disposable than
//     one that never carried a live stream (pure priority-only nodes
//     are retained preferentially, since they hold no history to fall
//     back on once evicted);
//   - among nodes tied on that, a shallower node (closer to the root)
//     is more disposable than a deeper one;
//   - among nodes tied on both, the node with the smaller stream id is
//     more disposable (newer, larger ids are kept — ties observed on
//     PRIORITY frames for streams 3,5,7,9 with a retention size of 2
//     retain {9,7}, not {3,5}).
func stateOnlyLess(a, b *Node) bool {
	if a.streamActivatedOrReserved != b.streamActivatedOrReserved {
		return a.streamActivatedOrReserved
	}
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.streamID < b.streamID
}
