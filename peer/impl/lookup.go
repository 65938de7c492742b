package impl

import (
	"sort"
	"time"

	"go.dedis.ch/kademlia/types"
)

// lookupEntry is a node of a lookup's working set. A zero queriedAt means
// not queried yet.
type lookupEntry struct {
	node      types.KademliaNode
	queriedAt time.Time
	answered  bool
}

func (e *lookupEntry) inFlight() bool {
	return !e.queriedAt.IsZero() && !e.answered
}

// lookupSession is the working set of one iterative lookup, ordered by
// distance to the target. It is owned by the goroutine running the lookup.
type lookupSession struct {
	target  types.NodeID
	own     types.NodeID
	entries []*lookupEntry
	index   map[string]*lookupEntry

	// nodes dropped for not answering are never added back
	pruned map[string]struct{}
}

func newLookupSession(own, target types.NodeID) *lookupSession {
	return &lookupSession{
		target: target,
		own:    own,
		index:  make(map[string]*lookupEntry),
		pruned: make(map[string]struct{}),
	}
}

// add inserts node at its distance rank. The own ID, known nodes and pruned
// nodes are skipped.
func (s *lookupSession) add(node types.KademliaNode) bool {
	key := node.ID.Key()

	if node.ID.Equal(s.own) {
		return false
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	if _, ok := s.pruned[key]; ok {
		return false
	}

	e := &lookupEntry{node: node}

	i := sort.Search(len(s.entries), func(i int) bool {
		return types.CompareDistance(s.target, node.ID, s.entries[i].node.ID) < 0
	})

	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
	s.index[key] = e

	return true
}

// next returns up to max unqueried entries, closest first, and marks them
// queried at now.
func (s *lookupSession) next(max int, now time.Time) []types.KademliaNode {
	var res []types.KademliaNode
	for _, e := range s.entries {
		if len(res) >= max {
			break
		}
		if e.queriedAt.IsZero() {
			e.queriedAt = now
			res = append(res, e.node)
		}
	}
	return res
}

func (s *lookupSession) inFlight() int {
	n := 0
	for _, e := range s.entries {
		if e.inFlight() {
			n++
		}
	}
	return n
}

func (s *lookupSession) markAnswered(id types.NodeID) {
	e, ok := s.index[id.Key()]
	if ok {
		e.answered = true
	}
}

// prune drops the entries queried before now-timeout without an answer.
func (s *lookupSession) prune(now time.Time, timeout time.Duration) int {
	deadline := now.Add(-timeout)

	kept := s.entries[:0]
	dropped := 0
	for _, e := range s.entries {
		if e.inFlight() && e.queriedAt.Before(deadline) {
			key := e.node.ID.Key()
			delete(s.index, key)
			s.pruned[key] = struct{}{}
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	return dropped
}

// done reports whether the k closest entries all answered.
func (s *lookupSession) done(k int) bool {
	for i, e := range s.entries {
		if i >= k {
			break
		}
		if !e.answered {
			return false
		}
	}
	return true
}

// closest returns the k closest answered nodes.
func (s *lookupSession) closest(k int) []types.KademliaNode {
	res := make([]types.KademliaNode, 0, k)
	for _, e := range s.entries {
		if len(res) >= k {
			break
		}
		if e.answered {
			res = append(res, e.node)
		}
	}
	return res
}
