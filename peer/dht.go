package peer

import (
	"context"

	"go.dedis.ch/kademlia/types"
)

// KademliaDHT is the overlay part of a node.
type KademliaDHT interface {
	// Bootstrap joins the network through the seed at addr: the seed is
	// pinged, added to the routing table and a lookup of the own ID fills
	// the table.
	Bootstrap(ctx context.Context, addr string) error

	// BootstrapState returns where the node is in the bootstrap process.
	BootstrapState() BootstrapState

	// NodeLookup returns the K closest nodes to target known to the network.
	// An empty routing table gives an empty result.
	NodeLookup(ctx context.Context, target types.NodeID) ([]types.KademliaNode, error)

	// ValueLookup searches the network for the value under key and returns
	// the first one received.
	ValueLookup(ctx context.Context, key types.NodeID) ([]byte, bool, error)

	// Store stores the value locally and on the K closest nodes to key. It
	// reports whether at least one custodian was found.
	Store(ctx context.Context, key types.NodeID, value []byte) (bool, error)

	// GetValue returns the local value under key or looks it up.
	GetValue(ctx context.Context, key types.NodeID) ([]byte, bool, error)

	// Ping sends a PING to addr and returns the node that answered.
	Ping(ctx context.Context, addr string) (types.KademliaNode, error)

	// RoutingTable returns a snapshot of every known node.
	RoutingTable() []types.KademliaNode
}

// Publisher stores signed pages under the key of their publisher.
type Publisher interface {
	// PublishData signs payload with the configured signer and stores it
	// under the publisher's key, which is returned.
	PublishData(ctx context.Context, payload []byte) (types.NodeID, error)

	// GetData fetches and verifies the page published under key.
	GetData(ctx context.Context, key types.NodeID) (types.Data, bool, error)
}

// BootstrapState is the state of the join process.
type BootstrapState int

const (
	// BootstrapIdle is the state before Start.
	BootstrapIdle BootstrapState = iota
	// BootstrapPinging means the seed is being pinged.
	BootstrapPinging
	// BootstrapJoined means the node is part of the network.
	BootstrapJoined
	// BootstrapFailed means the seed never answered.
	BootstrapFailed
)

// String implements fmt.Stringer.
func (s BootstrapState) String() string {
	switch s {
	case BootstrapIdle:
		return "idle"
	case BootstrapPinging:
		return "pinging"
	case BootstrapJoined:
		return "joined"
	case BootstrapFailed:
		return "failed"
	default:
		return "unknown"
	}
}
