package unit

import (
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/peer/impl"
)

var peerFac peer.Factory = impl.NewPeer
