package transport

import (
	"fmt"
	"time"
)

// Factory defines the general function to create a transport.
type Factory func() Transport

// Transport creates sockets.
type Transport interface {
	CreateSocket(address string) (ClosableSocket, error)
}

// Socket sends and receives raw datagrams.
type Socket interface {
	// Send sends data to dest. Implementations may queue the datagram and
	// return before it is written. A zero timeout means no deadline.
	Send(dest string, data []byte, timeout time.Duration) error

	// Recv blocks until a datagram arrives or the timeout expires, in which
	// case a TimeoutErr is returned. A zero timeout blocks forever.
	Recv(timeout time.Duration) (Packet, error)

	// GetAddress returns the address the socket is bound to. With a :0 port
	// this is the port chosen by the system.
	GetAddress() string

	// GetIns returns all the datagrams received so far. Implementations may
	// not record them.
	GetIns() []Packet

	// GetOuts returns all the datagrams sent so far.
	GetOuts() []Packet
}

// ClosableSocket is a socket that can be closed.
type ClosableSocket interface {
	Socket

	// Close releases the socket. It returns an error if already closed.
	Close() error
}

// Packet is a datagram together with its addresses.
type Packet struct {
	Source      string
	Destination string
	Data        []byte
}

// Copy returns a deep copy of the packet.
func (p Packet) Copy() Packet {
	return Packet{
		Source:      p.Source,
		Destination: p.Destination,
		Data:        append([]byte(nil), p.Data...),
	}
}

// String implements fmt.Stringer.
func (p Packet) String() string {
	return fmt.Sprintf("{%s -> %s: %d bytes}", p.Source, p.Destination, len(p.Data))
}

// TimeoutErr is returned by Recv when the timeout expires.
type TimeoutErr time.Duration

// Error implements error.
func (err TimeoutErr) Error() string {
	return fmt.Sprintf("timeout reached after %s", time.Duration(err))
}

// Is makes errors.Is(err, TimeoutErr(0)) hold for any timeout.
func (TimeoutErr) Is(err error) bool {
	_, ok := err.(TimeoutErr)
	return ok
}
