package channel

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"go.dedis.ch/kademlia/transport"
	"golang.org/x/xerrors"
)

// inbox size of each socket, datagrams beyond it are dropped like a full
// kernel buffer would
const queueSize = 10000

// firstPort is the port given to the first socket created with port 0
const firstPort = 10000

// NewTransport returns a lossless in-memory transport.
func NewTransport() *Transport {
	return NewLossyTransport(0)
}

// NewLossyTransport returns an in-memory transport that drops each datagram
// with probability lossRate.
func NewLossyTransport(lossRate float64) *Transport {
	return &Transport{
		incomings: make(map[string]chan transport.Packet),
		nextPort:  firstPort,
		lossRate:  lossRate,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Transport delivers datagrams between sockets of the same process.
//
// - implements transport.Transport
type Transport struct {
	sync.Mutex
	incomings map[string]chan transport.Packet
	nextPort  int
	lossRate  float64
	rnd       *rand.Rand
}

// CreateSocket implements transport.Transport. A :0 port is replaced by a
// fresh one.
func (t *Transport) CreateSocket(address string) (transport.ClosableSocket, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, xerrors.Errorf("invalid address %s: %v", address, err)
	}

	t.Lock()
	defer t.Unlock()

	if port == "0" {
		port = strconv.Itoa(t.nextPort)
		t.nextPort++
	}
	address = net.JoinHostPort(host, port)

	_, found := t.incomings[address]
	if found {
		return nil, xerrors.Errorf("address %s already in use", address)
	}

	t.incomings[address] = make(chan transport.Packet, queueSize)

	return &Socket{
		transport: t,
		myAddr:    address,
	}, nil
}

func (t *Transport) lookup(address string) (chan transport.Packet, bool) {
	t.Lock()
	defer t.Unlock()

	ch, ok := t.incomings[address]
	return ch, ok
}

func (t *Transport) drop() bool {
	if t.lossRate <= 0 {
		return false
	}

	t.Lock()
	defer t.Unlock()

	return t.rnd.Float64() < t.lossRate
}

// Socket is an in-memory socket.
//
// - implements transport.ClosableSocket
type Socket struct {
	transport *Transport
	myAddr    string

	ins  packets
	outs packets
}

// Close implements transport.ClosableSocket
func (s *Socket) Close() error {
	s.transport.Lock()
	defer s.transport.Unlock()

	_, ok := s.transport.incomings[s.myAddr]
	if !ok {
		return xerrors.Errorf("socket %s already closed", s.myAddr)
	}

	delete(s.transport.incomings, s.myAddr)

	return nil
}

// Send implements transport.Socket. Like UDP, datagrams to an unknown
// address, to a full inbox or picked by the loss simulation are silently
// dropped.
func (s *Socket) Send(dest string, data []byte, timeout time.Duration) error {
	pkt := transport.Packet{
		Source:      s.myAddr,
		Destination: dest,
		Data:        append([]byte(nil), data...),
	}

	s.outs.add(pkt)

	if s.transport.drop() {
		return nil
	}

	ch, ok := s.transport.lookup(dest)
	if !ok {
		return nil
	}

	select {
	case ch <- pkt:
	default:
	}

	return nil
}

// Recv implements transport.Socket
func (s *Socket) Recv(timeout time.Duration) (transport.Packet, error) {
	ch, ok := s.transport.lookup(s.myAddr)
	if !ok {
		return transport.Packet{}, xerrors.Errorf("socket %s is closed", s.myAddr)
	}

	var expired <-chan time.Time
	if timeout != 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case pkt := <-ch:
		s.ins.add(pkt)
		return pkt.Copy(), nil
	case <-expired:
		return transport.Packet{}, transport.TimeoutErr(timeout)
	}
}

// GetAddress implements transport.Socket
func (s *Socket) GetAddress() string {
	return s.myAddr
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Packet {
	return s.ins.getAll()
}

// GetOuts implements transport.Socket
func (s *Socket) GetOuts() []transport.Packet {
	return s.outs.getAll()
}

type packets struct {
	sync.Mutex
	data []transport.Packet
}

func (p *packets) add(pkt transport.Packet) {
	p.Lock()
	defer p.Unlock()

	p.data = append(p.data, pkt.Copy())
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
