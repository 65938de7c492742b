package impl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lni/goutils/syncutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/transport"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// lookupQueueSize is the buffer of a lookup's reply channel.
const lookupQueueSize = 64

// NewPeer creates a new peer
func NewPeer(conf peer.Configuration) (peer.Peer, error) {
	return newNode(conf)
}

func newNode(conf peer.Configuration) (*node, error) {
	err := conf.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %v", err)
	}

	id := conf.ID
	if id == nil {
		id = types.RandomNodeID(conf.IDLength)
	}

	store, err := newLocalStore(conf.Storage)
	if err != nil {
		return nil, err
	}

	addr := conf.Socket.GetAddress()

	n := &node{
		conf:     conf,
		id:       id,
		codec:    types.NewCodec(conf.IDLength, conf.NonceLength),
		log:      log.With().Str("node", id.Short()).Str("addr", addr).Logger(),
		table:    NewKBuckets(id, conf.K, conf.CacheSize),
		requests: NewRequestTable(),
		lookups:  NewLookupChannels(),
		store:    store,
		tracer:   newTracer(conf.TraceFile, id.Short()),
		stopper:  syncutil.NewStopper(),
		state:    peer.BootstrapIdle,
	}

	return n, nil
}

// node implements a Kademlia peer
//
// - implements peer.Peer
type node struct {
	conf  peer.Configuration
	id    types.NodeID
	codec types.Codec
	log   zerolog.Logger

	table    *KBuckets
	requests *RequestTable
	lookups  *LookupChannels
	store    *localStore
	tracer   *tracer

	stopper         *syncutil.Stopper
	maintenanceOnce sync.Once

	sync.Mutex
	running bool
	stopped bool
	state   peer.BootstrapState
}

// Start implements peer.Service
func (n *node) Start() error {
	n.Lock()
	if n.running || n.stopped {
		n.Unlock()
		return xerrors.New("node already started")
	}
	n.running = true
	n.Unlock()

	n.stopper.RunWorker(n.dispatchLoop)

	n.log.Info().Msgf("<[peer.Peer.Start] started with id %s>", n.id)

	if n.conf.BootstrapAddr == "" {
		n.setState(peer.BootstrapJoined)
		n.startMaintenance()
		return nil
	}

	return n.Bootstrap(context.Background(), n.conf.BootstrapAddr)
}

// Stop implements peer.Service
func (n *node) Stop() error {
	n.Lock()
	if !n.running {
		n.Unlock()
		return nil
	}
	n.running = false
	n.stopped = true
	n.Unlock()

	n.stopper.Stop()

	n.log.Info().Msg("<[peer.Peer.Stop] stopped>")

	return nil
}

// GetID implements peer.Peer
func (n *node) GetID() types.NodeID {
	return n.id
}

// GetAddr implements peer.Peer
func (n *node) GetAddr() string {
	return n.conf.Socket.GetAddress()
}

// BootstrapState implements peer.KademliaDHT
func (n *node) BootstrapState() peer.BootstrapState {
	n.Lock()
	defer n.Unlock()

	return n.state
}

func (n *node) setState(s peer.BootstrapState) {
	n.Lock()
	defer n.Unlock()

	n.state = s
}

// RoutingTable implements peer.KademliaDHT
func (n *node) RoutingTable() []types.KademliaNode {
	return n.table.All()
}

// dispatchLoop is the only reader of the socket.
func (n *node) dispatchLoop() {
	for {
		select {
		case <-n.stopper.ShouldStop():
			return
		default:
		}

		pkt, err := n.conf.Socket.Recv(n.conf.PollInterval)
		if errors.Is(err, transport.TimeoutErr(0)) {
			continue
		}
		if err != nil {
			n.log.Error().Msgf("<[peer.Peer.dispatch] Recv error>: <%s>", err)
			n.sleep(n.conf.PollInterval)
			continue
		}

		msg, err := n.codec.Decode(pkt.Data)
		if err != nil {
			n.log.Warn().Msgf("<[peer.Peer.dispatch] dropping datagram from %s>: <%s>", pkt.Source, err)
			continue
		}

		msg.From = pkt.Source
		msg.To = pkt.Destination

		n.handle(msg)
	}
}

// sleep waits d or until the node stops. It returns false on stop.
func (n *node) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-n.stopper.ShouldStop():
		return false
	}
}

// DirectSend encodes msg with the own ID and sends it to dest.
func (n *node) DirectSend(dest string, msg types.Message) error {
	msg.Sender = n.id
	msg.To = dest

	buf, err := n.codec.Encode(msg)
	if err != nil {
		return err
	}

	n.tracer.event("send %s to %s nonce %s", msg.Type, dest, msg.Nonce)

	return n.conf.Socket.Send(dest, buf, 0)
}

// sendRequest sends a request with a fresh nonce and registers its cookie.
// expected is nil when the peer's ID is unknown.
func (n *node) sendRequest(dest string, expected types.NodeID, t types.MessageType,
	payload types.Payload, lookupID string) (types.Nonce, error) {

	nonce := types.RandomNonce(n.conf.NonceLength)

	n.requests.Set(nonce, requestCookie{
		ExpectedPeer: expected,
		SendTime:     time.Now(),
		LookupID:     lookupID,
	})

	err := n.DirectSend(dest, types.Message{Type: t, Nonce: nonce, Payload: payload})
	if err != nil {
		n.requests.Delete(nonce)
		return nil, err
	}

	return nonce, nil
}

// reply answers req with the same nonce.
func (n *node) reply(req types.Message, t types.MessageType, payload types.Payload) error {
	return n.DirectSend(req.From, types.Message{Type: t, Nonce: req.Nonce, Payload: payload})
}

// pingNode sends a liveness ping. A missing PONG makes the unanswered sweep
// replace the node.
func (n *node) pingNode(target types.KademliaNode) {
	_, err := n.sendRequest(target.Addr(), target.ID, types.TypePing, nil, "")
	if err != nil {
		n.log.Warn().Msgf("<[peer.Peer.pingNode] failed to ping %s>: <%s>", target, err)
	}
}

// updateTable records node in the routing table and pings the eviction
// candidate if its bucket is full.
func (n *node) updateTable(node types.KademliaNode, ts time.Time) {
	candidate := n.table.Update(node, ts)
	if candidate != nil {
		n.pingNode(*candidate)
	}
}

// stopContext returns a context cancelled with ctx or when the node stops.
func (n *node) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		select {
		case <-ctx.Done():
		case <-n.stopper.ShouldStop():
			cancel()
		}
	}()

	return ctx, cancel
}

func (n *node) isStopping() bool {
	select {
	case <-n.stopper.ShouldStop():
		return true
	default:
		return false
	}
}
