package impl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/storage/inmemory"
	"go.dedis.ch/kademlia/transport/channel"
	"go.dedis.ch/kademlia/types"
)

// newTestPeer returns a node with one-byte IDs that is not started.
func newTestPeer(t *testing.T, id byte, k int) *node {
	socket, err := channel.NewTransport().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	conf := peer.DefaultConfiguration()
	conf.Socket = socket
	conf.Storage = inmemory.NewStorage()
	conf.IDLength = 1
	conf.ID = types.NodeID{id}
	conf.K = k

	n, err := newNode(conf)
	require.NoError(t, err)

	return n
}

func Test_NODE_SweepReplacesSilentPeer(t *testing.T) {
	n := newTestPeer(t, 0x00, 1)

	now := time.Now()
	n.table.Update(testNode(0x80), now)
	require.NotNil(t, n.table.Update(testNode(0x81), now))

	sent := now
	n.requests.Set(types.RandomNonce(20), requestCookie{ExpectedPeer: types.NodeID{0x80}, SendTime: sent})

	require.Equal(t, 0, n.sweepUnanswered(sent.Add(time.Second)))
	require.Equal(t, 1, n.requests.Len())

	require.Equal(t, 1, n.sweepUnanswered(sent.Add(2001*time.Millisecond)))
	require.Equal(t, 0, n.requests.Len())

	require.False(t, n.table.Contains(types.NodeID{0x80}))
	require.True(t, n.table.Contains(types.NodeID{0x81}))
}

func Test_NODE_SweepIgnoresUnknownPeer(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	sent := time.Now()
	n.requests.Set(types.RandomNonce(20), requestCookie{SendTime: sent})

	require.Equal(t, 1, n.sweepUnanswered(sent.Add(time.Minute)))
	require.Equal(t, 0, n.table.Len())
}

func Test_NODE_MismatchedReplyDiscarded(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	nonce := types.RandomNonce(20)
	n.requests.Set(nonce, requestCookie{ExpectedPeer: types.NodeID{0x02}, SendTime: time.Now()})

	n.handle(types.Message{
		Type:    types.TypeFindNodeR,
		Sender:  types.NodeID{0x03},
		Nonce:   nonce,
		Payload: types.Tuples{Tuples: []types.Tuple{testNode(0x04).ToTuple()}},
		From:    "127.0.0.1:10003",
	})

	// the cookie still waits for 0x02 and nothing was learned
	_, ok := n.requests.Get(nonce)
	require.True(t, ok)
	require.Equal(t, 0, n.table.Len())
}

func Test_NODE_RequestAddsSender(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	n.handle(types.Message{
		Type:    types.TypeFindNode,
		Sender:  types.NodeID{0x05},
		Nonce:   types.RandomNonce(20),
		Payload: types.FindKey{Key: types.NodeID{0x05}},
		From:    "127.0.0.1:10005",
	})

	require.True(t, n.table.Contains(types.NodeID{0x05}))

	outs := n.conf.Socket.GetOuts()
	require.Len(t, outs, 1)
	require.Equal(t, "127.0.0.1:10005", outs[0].Destination)

	reply, err := n.codec.Decode(outs[0].Data)
	require.NoError(t, err)
	require.Equal(t, types.TypeFindNodeR, reply.Type)
}

func Test_NODE_ClosestTuplesSkipsIPv6(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	now := time.Now()
	n.table.Update(testNode(0x01), now)
	n.table.Update(types.KademliaNode{ID: types.NodeID{0x02}, IP: net.ParseIP("fe80::1"), Port: 1}, now)

	tuples := n.closestTuples(types.NodeID{0x01})
	require.Len(t, tuples.Tuples, 1)
	require.Equal(t, types.NodeID{0x01}, tuples.Tuples[0].ID)
}

func Test_NODE_LookupEmptyTable(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	nodes, err := n.NodeLookup(context.Background(), types.NodeID{0x10})
	require.NoError(t, err)
	require.Empty(t, nodes)

	_, found, err := n.ValueLookup(context.Background(), types.NodeID{0x10})
	require.NoError(t, err)
	require.False(t, found)
}

func Test_NODE_PingInactive(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	now := time.Now()
	n.table.Update(testNode(0x01), now.Add(-time.Minute))
	n.table.Update(testNode(0x80), now)

	require.Equal(t, 1, n.pingInactive(now))
	require.Equal(t, 1, n.requests.Len())

	outs := n.conf.Socket.GetOuts()
	require.Len(t, outs, 1)
	require.Equal(t, testNode(0x01).Addr(), outs[0].Destination)
	require.Equal(t, byte(types.TypePing), outs[0].Data[0])
}

func Test_NODE_RepublishWithoutPeers(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	found, err := n.Store(context.Background(), types.NodeID{0x42}, []byte("v"))
	require.NoError(t, err)
	require.False(t, found)
	require.True(t, n.store.HasUnpublished())

	require.Equal(t, 1, n.republish(time.Now()))
	require.True(t, n.store.HasUnpublished())
}

func Test_NODE_RefreshBuckets(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)

	// every lookup comes back short on an empty table
	require.True(t, n.refreshBuckets(time.Now()))

	for i := 0; i < n.table.BucketCount(); i++ {
		n.table.NodeLookupPerformed(types.RandomIDInBucket(n.id, i))
	}

	// all buckets were just refreshed, nothing to do
	require.False(t, n.refreshBuckets(time.Now()))
}

func Test_NODE_RejectsKeyOfWrongWidth(t *testing.T) {
	n := newTestPeer(t, 0x00, 20)
	n.table.Update(testNode(0x80), time.Now())

	short := types.NodeID{}
	long := types.NodeID{0x01, 0x02}

	for _, key := range []types.NodeID{short, long} {
		_, err := n.NodeLookup(context.Background(), key)
		require.ErrorIs(t, err, peer.ErrInvalidKey)

		_, _, err = n.ValueLookup(context.Background(), key)
		require.ErrorIs(t, err, peer.ErrInvalidKey)

		_, _, err = n.GetValue(context.Background(), key)
		require.ErrorIs(t, err, peer.ErrInvalidKey)

		_, err = n.Store(context.Background(), key, []byte("v"))
		require.ErrorIs(t, err, peer.ErrInvalidKey)
	}

	require.Equal(t, 0, n.requests.Len())
}
