package types

import (
	"fmt"
	"net"
	"strconv"
)

// -----------------------------------------------------------------------------
// MessageType

// String returns the protocol name of the type.
func (t MessageType) String() string {
	switch t {
	case TypeHeader:
		return "HEADER"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeStore:
		return "STORE"
	case TypeStoreAck:
		return "STORE_ACK"
	case TypeFindNode:
		return "FIND_NODE"
	case TypeFindNodeR:
		return "FIND_NODE_R"
	case TypeFindValue:
		return "FIND_VALUE"
	case TypeFindValueR:
		return "FIND_VALUE_R"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// Known reports whether the type is one of the protocol types.
func (t MessageType) Known() bool {
	return t <= TypeFindValueR
}

// -----------------------------------------------------------------------------
// KademliaNode

// Addr returns the node's UDP address as host:port.
func (k KademliaNode) Addr() string {
	return net.JoinHostPort(k.IP.String(), strconv.Itoa(int(k.Port)))
}

// String implements fmt.Stringer.
func (k KademliaNode) String() string {
	return fmt.Sprintf("%s@%s", k.ID.Short(), k.Addr())
}

// NodeFromAddr builds a node from an ID and a host:port address.
func NodeFromAddr(id NodeID, addr string) (KademliaNode, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return KademliaNode{}, err
	}
	return KademliaNode{ID: id, IP: udpAddr.IP, Port: uint16(udpAddr.Port)}, nil
}

// ToTuple converts the node to its wire representation.
func (k KademliaNode) ToTuple() Tuple {
	return Tuple{Port: uint32(k.Port), IP: k.IP, ID: k.ID}
}

// Node converts the tuple back to a routing table entry.
func (t Tuple) Node() KademliaNode {
	return KademliaNode{ID: t.ID, IP: t.IP, Port: uint16(t.Port)}
}

// -----------------------------------------------------------------------------
// Message

// String implements fmt.Stringer.
func (m Message) String() string {
	name := "-"
	if m.Payload != nil {
		name = m.Payload.Name()
	}
	return fmt.Sprintf("{%s from %s nonce %s payload %s}", m.Type, m.Sender.Short(), m.Nonce.String(), name)
}

// -----------------------------------------------------------------------------
// EntryKey

// Name implements types.Payload.
func (EntryKey) Name() string {
	return "entrykey"
}

func (EntryKey) payload() {}

// -----------------------------------------------------------------------------
// FindKey

// Name implements types.Payload.
func (FindKey) Name() string {
	return "findkey"
}

func (FindKey) payload() {}

// -----------------------------------------------------------------------------
// Tuples

// Name implements types.Payload.
func (Tuples) Name() string {
	return "tuples"
}

func (Tuples) payload() {}

// -----------------------------------------------------------------------------
// EntryValue

// Name implements types.Payload.
func (EntryValue) Name() string {
	return "entryvalue"
}

func (EntryValue) payload() {}

// -----------------------------------------------------------------------------
// StatusTCPInfo

// Name implements types.Payload.
func (StatusTCPInfo) Name() string {
	return "statustcpinfo"
}

func (StatusTCPInfo) payload() {}
