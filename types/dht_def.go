package types

import (
	"net"
)

// MessageType is the first byte of every datagram.
type MessageType byte

const (
	TypeHeader     MessageType = 0 // header only, reserved
	TypePing       MessageType = 1
	TypePong       MessageType = 2
	TypeStore      MessageType = 3
	TypeStoreAck   MessageType = 4
	TypeFindNode   MessageType = 5
	TypeFindNodeR  MessageType = 6
	TypeFindValue  MessageType = 7
	TypeFindValueR MessageType = 8
)

// KademliaNode is an entry of the routing table
type KademliaNode struct {
	ID   NodeID
	IP   net.IP
	Port uint16
}

// Message is a decoded datagram. From and To are transport addresses and are
// not part of the encoding.
type Message struct {
	Type    MessageType
	Sender  NodeID
	Nonce   Nonce
	Payload Payload

	From string
	To   string
}

// Payload is one of EntryKey, FindKey, Tuples, EntryValue or StatusTCPInfo.
type Payload interface {
	// Name returns the payload name, for logs
	Name() string

	payload()
}

// EntryKey is the payload of STORE.
//
// - implements types.Payload
type EntryKey struct {
	Key   NodeID
	Value []byte
}

// FindKey is the payload of FIND_NODE and FIND_VALUE.
//
// - implements types.Payload
type FindKey struct {
	Key NodeID
}

// Tuple is one contact of a FIND_NODE_R reply.
type Tuple struct {
	Port uint32
	IP   net.IP
	ID   NodeID
}

// Tuples is the payload of FIND_NODE_R.
//
// - implements types.Payload
type Tuples struct {
	Tuples []Tuple
}

// EntryValue is the payload of FIND_VALUE_R. IsValue distinguishes a stored
// value from an informational message.
//
// - implements types.Payload
type EntryValue struct {
	IsValue bool
	Value   []byte
}

// StatusTCPInfo acknowledges a STORE.
//
// - implements types.Payload
type StatusTCPInfo struct {
	Status byte
	Info   []byte
}

const (
	// StatusStored is sent back when the value was accepted.
	StatusStored byte = 0
	// StatusRejected is sent back when the value was refused, for example a
	// page with an invalid signature or an older timestamp.
	StatusRejected byte = 1
)
