package integration

import (
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/peer/impl"
	"go.dedis.ch/kademlia/transport"
	"go.dedis.ch/kademlia/transport/udp"
)

var peerFac peer.Factory = impl.NewPeer

var udpFac transport.Factory = func() transport.Transport {
	return udp.NewUDP(udp.WithRecording())
}
