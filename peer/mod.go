package peer

import (
	"go.dedis.ch/kademlia/types"
)

// Peer defines the interface of a Kademlia node.
type Peer interface {
	Service
	KademliaDHT
	Publisher

	// GetID returns the node's own ID.
	GetID() types.NodeID

	// GetAddr returns the address the node listens on.
	GetAddr() string
}

// Factory is the type of function we are using to create new instances of
// peers.
type Factory func(Configuration) (Peer, error)

// Service defines the interface to start and stop a node.
type Service interface {
	// Start starts the dispatch loop. Without a configured bootstrap address
	// the node is joined right away, otherwise Start bootstraps and returns
	// ErrBootstrapFailed when every attempt failed.
	Start() error

	// Stop stops every goroutine of the node and waits for them to return.
	Stop() error
}
