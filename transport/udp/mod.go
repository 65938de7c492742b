package udp

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kademlia/transport"
	"golang.org/x/xerrors"
)

// large enough for any IPv4 UDP payload
const bufSize = 65535

// Option configures the UDP transport.
type Option func(*UDP)

// WithRecording keeps a copy of every datagram sent and received, returned by
// GetIns and GetOuts. Memory grows with the traffic, it is meant for tests.
func WithRecording() Option {
	return func(u *UDP) {
		u.record = true
	}
}

// NewUDP returns a new udp transport implementation.
func NewUDP(opts ...Option) transport.Transport {
	u := &UDP{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UDP implements a transport layer using UDP
//
// - implements transport.Transport
type UDP struct {
	record bool
}

// CreateSocket implements transport.Transport
func (n *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	pc, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen on %s: %v", address, err)
	}

	s := &Socket{pc: pc, record: n.record}
	s.writer.socket = s

	return s, nil
}

// Socket implements a network socket using UDP. Outgoing datagrams go through
// a single writer actor so that Send never blocks the caller.
//
// - implements transport.Socket
// - implements transport.ClosableSocket
type Socket struct {
	pc     net.PacketConn
	writer writer
	record bool

	ins  packets
	outs packets
}

// Close implements transport.Socket. Queued datagrams are written before the
// connection is closed. It returns an error if already closed.
func (s *Socket) Close() error {
	phony.Block(&s.writer, func() {})
	return s.pc.Close()
}

// Send implements transport.Socket. The datagram is queued and written
// asynchronously; write errors are logged.
func (s *Socket) Send(dest string, data []byte, timeout time.Duration) error {
	raddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return xerrors.Errorf("failed to resolve %s: %v", dest, err)
	}

	if len(data) > bufSize {
		return xerrors.Errorf("datagram of %d bytes is too large", len(data))
	}

	pkt := transport.Packet{
		Source:      s.GetAddress(),
		Destination: raddr.String(),
		Data:        append([]byte(nil), data...),
	}

	s.writer.Act(nil, func() {
		s.writer.write(raddr, pkt, timeout)
	})

	return nil
}

// Recv implements transport.Socket. It blocks until a packet is received, or
// the timeout is reached. In the case the timeout is reached, return a
// TimeoutErr.
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	if timeout == 0 {
		s.pc.SetReadDeadline(time.Time{})
	} else {
		s.pc.SetReadDeadline(time.Now().Add(timeout))
	}

	buffer := make([]byte, bufSize)

	n, from, err := s.pc.ReadFrom(buffer)
	if err != nil {
		if os.IsTimeout(err) {
			return transport.Packet{}, transport.TimeoutErr(timeout)
		}
		return transport.Packet{}, err
	}

	pkt := transport.Packet{
		Source:      from.String(),
		Destination: s.GetAddress(),
		Data:        buffer[:n],
	}

	if s.record {
		s.ins.add(pkt)
	}

	return pkt, nil
}

// GetAddress implements transport.Socket. It returns the address assigned. Can
// be useful in the case one provided a :0 address, which makes the system use a
// random free port.
func (s *Socket) GetAddress() string {
	return s.pc.LocalAddr().String()
}

// GetIns implements transport.Socket. It is empty unless the transport
// was created WithRecording.
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.getAll()
}

// GetOuts implements transport.Socket. It is empty unless the transport
// was created WithRecording.
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.getAll()
}

// writer owns every write on the connection.
type writer struct {
	phony.Inbox
	socket *Socket
}

func (w *writer) write(raddr net.Addr, pkt transport.Packet, timeout time.Duration) {
	pc := w.socket.pc

	if timeout == 0 {
		pc.SetWriteDeadline(time.Time{})
	} else {
		pc.SetWriteDeadline(time.Now().Add(timeout))
	}

	written, err := pc.WriteTo(pkt.Data, raddr)
	if err != nil {
		log.Warn().Msgf("<[transport.udp.Socket.Send] failed to send to %s>: <%s>", raddr, err)
		return
	}
	if written < len(pkt.Data) {
		log.Warn().Msgf("<[transport.udp.Socket.Send] short write to %s>: <%d/%d>",
			raddr, written, len(pkt.Data))
		return
	}

	if w.socket.record {
		w.socket.outs.add(pkt)
	}
}

type packets struct {
	sync.Mutex
	data []transport.Packet
}

func (p *packets) add(pkt transport.Packet) {
	p.Lock()
	defer p.Unlock()

	p.data = append(p.data, pkt)
}

func (p *packets) getAll() []transport.Packet {
	p.Lock()
	defer p.Unlock()

	res := make([]transport.Packet, len(p.data))

	for i, pkt := range p.data {
		res[i] = pkt.Copy()
	}

	return res
}
