package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	z "go.dedis.ch/kademlia/internal/testing"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/peer/impl"
	"go.dedis.ch/kademlia/transport/channel"
	"go.dedis.ch/kademlia/types"
)

var peerFac peer.Factory = impl.NewPeer

func startNetwork(b *testing.B, size int) []z.TestNode {
	transp := channel.NewTransport()

	nodes := make([]z.TestNode, size)
	nodes[0] = z.NewTestNode(b, peerFac, transp, "127.0.0.1:0")

	for i := 1; i < size; i++ {
		nodes[i] = z.NewTestNode(b, peerFac, transp, "127.0.0.1:0", z.WithBootstrap(nodes[0].GetAddr()))
	}

	return nodes
}

func stopAll(nodes []z.TestNode) {
	for _, n := range nodes {
		n.Stop()
	}
}

// Store values in networks of growing size
func Benchmark_DHT_Store(b *testing.B) {
	for _, size := range []int{2, 5, 10, 20} {
		b.Run(fmt.Sprintf("nodes=%d", size), func(b *testing.B) {
			nodes := startNetwork(b, size)
			defer stopAll(nodes)

			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				n := nodes[i%size]
				_, err := n.Store(ctx, types.RandomNodeID(32), []byte("value"))
				require.NoError(b, err)
			}
		})
	}
}

// Look up random targets in networks of growing size
func Benchmark_DHT_NodeLookup(b *testing.B) {
	for _, size := range []int{2, 5, 10, 20} {
		b.Run(fmt.Sprintf("nodes=%d", size), func(b *testing.B) {
			nodes := startNetwork(b, size)
			defer stopAll(nodes)

			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				n := nodes[i%size]
				_, err := n.NodeLookup(ctx, types.RandomNodeID(32))
				require.NoError(b, err)
			}
		})
	}
}
