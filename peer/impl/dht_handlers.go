package impl

import (
	"time"

	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// handle runs the handler of msg and, when it succeeded, records the sender
// in the routing table.
func (n *node) handle(msg types.Message) {
	n.tracer.event("recv %s from %s nonce %s", msg.Type, msg.From, msg.Nonce)

	var err error

	switch msg.Type {
	case types.TypePing:
		err = n.PingExec(msg)
	case types.TypePong:
		err = n.PongExec(msg)
	case types.TypeStore:
		err = n.StoreExec(msg)
	case types.TypeStoreAck:
		err = n.StoreAckExec(msg)
	case types.TypeFindNode:
		err = n.FindNodeExec(msg)
	case types.TypeFindValue:
		err = n.FindValueExec(msg)
	case types.TypeFindNodeR, types.TypeFindValueR:
		err = n.ReplyExec(msg)
	default:
		n.log.Warn().Msgf("<[peer.Peer.handle] unsupported message type>: <%s from %s>", msg.Type, msg.From)
		return
	}

	if xerrors.Is(err, peer.ErrUnknownPeerReply) {
		n.log.Debug().Msgf("<[peer.Peer.handle] discarding %s>: <%s>", msg, err)
		return
	}
	if err != nil {
		n.log.Error().Msgf("<[peer.Peer.handle] %s error>: <%s>", msg.Type, err)
		return
	}

	sender, err := types.NodeFromAddr(msg.Sender, msg.From)
	if err != nil {
		n.log.Warn().Msgf("<[peer.Peer.handle] invalid sender address %s>: <%s>", msg.From, err)
		return
	}

	n.updateTable(sender, time.Now())
}

// checkRandomID consumes the cookie of a reply. It fails when the nonce is
// unknown or the reply does not come from the peer the request was sent to.
func (n *node) checkRandomID(msg types.Message) (requestCookie, error) {
	cookie, ok := n.requests.Take(msg.Nonce, msg.Sender)
	if !ok {
		return requestCookie{}, xerrors.Errorf("%s nonce %s from %s: %w",
			msg.Type, msg.Nonce, msg.Sender.Short(), peer.ErrUnknownPeerReply)
	}
	return cookie, nil
}

// forward hands a reply to the lookup waiting for it.
func (n *node) forward(cookie requestCookie, msg types.Message) {
	if cookie.LookupID == "" {
		return
	}

	channel, ok := n.lookups.Get(cookie.LookupID)
	if !ok {
		n.log.Debug().Msgf("<[peer.Peer.forward] lookup %s already ended>: <%s>", cookie.LookupID, msg)
		return
	}

	select {
	case channel <- msg:
	default:
		n.log.Warn().Msgf("<[peer.Peer.forward] lookup %s is not reading>: <%s>", cookie.LookupID, msg)
	}
}

// PingExec answers with a PONG carrying the same nonce.
func (n *node) PingExec(msg types.Message) error {
	return n.reply(msg, types.TypePong, nil)
}

// PongExec wakes whoever waits for the PONG.
func (n *node) PongExec(msg types.Message) error {
	cookie, err := n.checkRandomID(msg)
	if err != nil {
		return err
	}

	n.forward(cookie, msg)

	return nil
}

// StoreExec stores the value and acknowledges it if configured to.
func (n *node) StoreExec(msg types.Message) error {
	entry, ok := msg.Payload.(types.EntryKey)
	if !ok {
		return xerrors.Errorf("wrong payload: %T", msg.Payload)
	}

	stored, err := n.store.Put(entry.Key, entry.Value, time.Now())
	if err != nil {
		n.log.Warn().Msgf("<[peer.Peer.StoreExec] refused %s from %s>: <%s>", entry.Key.Short(), msg.From, err)
	}

	if !n.conf.AckStores {
		return nil
	}

	ack := types.StatusTCPInfo{Status: types.StatusStored}
	switch {
	case err != nil:
		ack = types.StatusTCPInfo{Status: types.StatusRejected, Info: []byte(err.Error())}
	case !stored:
		ack = types.StatusTCPInfo{Status: types.StatusRejected, Info: []byte("newer value held")}
	}

	return n.reply(msg, types.TypeStoreAck, ack)
}

// StoreAckExec consumes the cookie of an acknowledged STORE.
func (n *node) StoreAckExec(msg types.Message) error {
	cookie, err := n.checkRandomID(msg)
	if err != nil {
		return err
	}

	ack, ok := msg.Payload.(types.StatusTCPInfo)
	if ok && ack.Status != types.StatusStored {
		n.log.Info().Msgf("<[peer.Peer.StoreAckExec] %s refused the value>: <%s>", msg.From, ack.Info)
	}

	n.forward(cookie, msg)

	return nil
}

// FindNodeExec answers with the K closest nodes to the key.
func (n *node) FindNodeExec(msg types.Message) error {
	find, ok := msg.Payload.(types.FindKey)
	if !ok {
		return xerrors.Errorf("wrong payload: %T", msg.Payload)
	}

	return n.reply(msg, types.TypeFindNodeR, n.closestTuples(find.Key))
}

// FindValueExec answers with the value if held, like FindNodeExec otherwise.
func (n *node) FindValueExec(msg types.Message) error {
	find, ok := msg.Payload.(types.FindKey)
	if !ok {
		return xerrors.Errorf("wrong payload: %T", msg.Payload)
	}

	value, ok := n.store.Get(find.Key)
	if ok {
		return n.reply(msg, types.TypeFindValueR, types.EntryValue{IsValue: true, Value: value})
	}

	return n.reply(msg, types.TypeFindNodeR, n.closestTuples(find.Key))
}

// ReplyExec hands FIND_NODE_R and FIND_VALUE_R to their lookup.
func (n *node) ReplyExec(msg types.Message) error {
	cookie, err := n.checkRandomID(msg)
	if err != nil {
		return err
	}

	n.forward(cookie, msg)

	return nil
}

func (n *node) closestTuples(key types.NodeID) types.Tuples {
	nodes := n.table.Lookup(key, n.conf.K)

	tuples := make([]types.Tuple, 0, len(nodes))
	for _, node := range nodes {
		// the wire format only carries IPv4
		if node.IP.To4() == nil {
			continue
		}
		tuples = append(tuples, node.ToTuple())
	}

	return types.Tuples{Tuples: tuples}
}
