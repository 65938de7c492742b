package impl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kademlia/types"
)

func Test_LOOKUP_SessionOrder(t *testing.T) {
	s := newLookupSession(types.NodeID{0x00}, types.NodeID{0x10})

	for _, id := range []byte{0x80, 0x11, 0x00, 0x30, 0x12} {
		s.add(testNode(id))
	}

	// own ID skipped, duplicates ignored
	require.False(t, s.add(testNode(0x11)))
	require.Len(t, s.entries, 4)

	now := time.Now()
	require.Equal(t, []byte{0x11, 0x12}, ids(s.next(2, now)))
	require.Equal(t, 2, s.inFlight())
	require.Equal(t, []byte{0x30}, ids(s.next(1, now)))
	require.Equal(t, 3, s.inFlight())
}

func Test_LOOKUP_SessionDone(t *testing.T) {
	s := newLookupSession(types.NodeID{0x00}, types.NodeID{0x10})
	for _, id := range []byte{0x11, 0x12, 0x80} {
		s.add(testNode(id))
	}

	s.next(3, time.Now())
	require.False(t, s.done(2))

	s.markAnswered(types.NodeID{0x11})
	s.markAnswered(types.NodeID{0x12})
	require.True(t, s.done(2))
	require.False(t, s.done(3))

	require.Equal(t, []byte{0x11, 0x12}, ids(s.closest(20)))

	// a closer node learned late must be queried as well
	s.add(testNode(0x10))
	require.False(t, s.done(2))
}

func Test_LOOKUP_SessionPrune(t *testing.T) {
	s := newLookupSession(types.NodeID{0x00}, types.NodeID{0x10})
	for _, id := range []byte{0x11, 0x12, 0x13} {
		s.add(testNode(id))
	}

	start := time.Now()
	s.next(2, start)
	s.markAnswered(types.NodeID{0x12})

	require.Equal(t, 0, s.prune(start.Add(time.Second), 2*time.Second))
	require.Equal(t, 1, s.prune(start.Add(3*time.Second), 2*time.Second))

	require.Equal(t, []byte{0x12, 0x13}, ids(entryNodes(s)))

	// pruned nodes are not added back
	require.False(t, s.add(testNode(0x11)))

	// the unqueried entry is kept
	require.Equal(t, []byte{0x13}, ids(s.next(3, start.Add(3*time.Second))))
}

func entryNodes(s *lookupSession) []types.KademliaNode {
	res := make([]types.KademliaNode, len(s.entries))
	for i, e := range s.entries {
		res[i] = e.node
	}
	return res
}
