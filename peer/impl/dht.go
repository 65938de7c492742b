package impl

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// checkKey rejects keys that do not have the configured ID width, they
// cannot be compared with the routing table.
func (n *node) checkKey(key types.NodeID) error {
	if len(key) != n.conf.IDLength {
		return xerrors.Errorf("key of %d bytes, expected %d: %w", len(key), n.conf.IDLength, peer.ErrInvalidKey)
	}
	return nil
}

// NodeLookup implements peer.KademliaDHT
func (n *node) NodeLookup(ctx context.Context, target types.NodeID) ([]types.KademliaNode, error) {
	err := n.checkKey(target)
	if err != nil {
		return nil, err
	}

	nodes, _, _, err := n.lookup(ctx, target, false)
	return nodes, err
}

// ValueLookup implements peer.KademliaDHT. The first value received wins.
func (n *node) ValueLookup(ctx context.Context, key types.NodeID) ([]byte, bool, error) {
	err := n.checkKey(key)
	if err != nil {
		return nil, false, err
	}

	_, value, found, err := n.lookup(ctx, key, true)
	return value, found, err
}

// lookup runs the iterative lookup of target. Each round sends FIND_NODE, or
// FIND_VALUE, to unqueried nodes of the working set while less than Alpha
// requests are in flight, waits PollTimeout for a reply, merges the returned
// nodes and prunes the nodes that did not answer within RequestTimeout. It
// ends when the K closest nodes all answered or, for a value lookup, when a
// value arrives.
func (n *node) lookup(ctx context.Context, target types.NodeID,
	findValue bool) ([]types.KademliaNode, []byte, bool, error) {

	seeds := n.table.Lookup(target, n.conf.K)
	if len(seeds) == 0 {
		n.log.Debug().Msgf("<[peer.Peer.lookup] %s>: <%s>", target.Short(), peer.ErrEmptyRoutingTable)
		return []types.KademliaNode{}, nil, false, nil
	}

	n.table.NodeLookupPerformed(target)

	session := newLookupSession(n.id, target)
	for _, seed := range seeds {
		session.add(seed)
	}

	lookupID := xid.New().String()
	channel := n.lookups.Set(lookupID, make(chan types.Message, lookupQueueSize))
	defer n.lookups.Delete(lookupID)

	reqType := types.TypeFindNode
	if findValue {
		reqType = types.TypeFindValue
	}

	timer := time.NewTimer(n.conf.PollTimeout)
	defer timer.Stop()

	for {
		if session.done(n.conf.K) {
			return session.closest(n.conf.K), nil, false, nil
		}

		for _, dest := range session.next(n.conf.Alpha-session.inFlight(), time.Now()) {
			_, err := n.sendRequest(dest.Addr(), dest.ID, reqType, types.FindKey{Key: target}, lookupID)
			if err != nil {
				n.log.Warn().Msgf("<[peer.Peer.lookup] failed to query %s>: <%s>", dest, err)
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.conf.PollTimeout)

		select {
		case msg := <-channel:
			value, found := n.mergeReply(session, msg)
			if found {
				return nil, value, true, nil
			}

			// take whatever else already arrived
			for drained := false; !drained; {
				select {
				case msg := <-channel:
					value, found := n.mergeReply(session, msg)
					if found {
						return nil, value, true, nil
					}
				default:
					drained = true
				}
			}
		case <-timer.C:
		case <-ctx.Done():
			return nil, nil, false, ctx.Err()
		case <-n.stopper.ShouldStop():
			return nil, nil, false, peer.ErrStopped
		}

		session.prune(time.Now(), n.conf.RequestTimeout)
	}
}

// mergeReply marks the sender answered and adds the returned nodes to both
// the session and the routing table.
func (n *node) mergeReply(session *lookupSession, msg types.Message) ([]byte, bool) {
	session.markAnswered(msg.Sender)

	switch payload := msg.Payload.(type) {
	case types.EntryValue:
		if payload.IsValue {
			return payload.Value, true
		}
	case types.Tuples:
		for _, tuple := range payload.Tuples {
			if tuple.ID.Equal(n.id) {
				continue
			}

			node := tuple.Node()
			// learned nodes were not seen by us, they keep a zero timestamp
			n.updateTable(node, time.Time{})
			session.add(node)
		}
	}

	return nil, false
}

// Store implements peer.KademliaDHT
func (n *node) Store(ctx context.Context, key types.NodeID, value []byte) (bool, error) {
	err := n.checkKey(key)
	if err != nil {
		return false, err
	}

	stored, err := n.store.Put(key, value, time.Now())
	if err != nil {
		return false, err
	}
	if !stored {
		return false, peer.ErrStaleValue
	}

	n.store.Own(key)

	return n.publish(ctx, key, value)
}

// publish sends STORE to the K closest nodes to key. It reports whether a
// custodian was found.
func (n *node) publish(ctx context.Context, key types.NodeID, value []byte) (bool, error) {
	custodians, err := n.NodeLookup(ctx, key)
	if err != nil {
		n.store.MarkUnpublished(key)
		return false, err
	}

	if len(custodians) == 0 {
		n.log.Info().Msgf("<[peer.Peer.publish] %s kept locally>: <no custodian>", key.Short())
		n.store.MarkUnpublished(key)
		return false, nil
	}

	var sent int32
	var g errgroup.Group

	for _, custodian := range custodians {
		custodian := custodian
		g.Go(func() error {
			err := n.sendStore(custodian, key, value)
			if err != nil {
				return xerrors.Errorf("failed to store at %s: %v", custodian, err)
			}
			atomic.AddInt32(&sent, 1)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		n.log.Warn().Msgf("<[peer.Peer.publish] %s>: <%s>", key.Short(), err)
	}

	if atomic.LoadInt32(&sent) == 0 {
		n.store.MarkUnpublished(key)
		return false, err
	}

	n.store.MarkPublished(key, time.Now())

	return true, nil
}

// sendStore sends one STORE. A cookie is only registered when stores are
// acknowledged, otherwise the unanswered sweep would evict the custodian.
func (n *node) sendStore(custodian types.KademliaNode, key types.NodeID, value []byte) error {
	payload := types.EntryKey{Key: key, Value: value}

	if n.conf.AckStores {
		_, err := n.sendRequest(custodian.Addr(), custodian.ID, types.TypeStore, payload, "")
		return err
	}

	return n.DirectSend(custodian.Addr(), types.Message{
		Type:    types.TypeStore,
		Nonce:   types.RandomNonce(n.conf.NonceLength),
		Payload: payload,
	})
}

// GetValue implements peer.KademliaDHT
func (n *node) GetValue(ctx context.Context, key types.NodeID) ([]byte, bool, error) {
	err := n.checkKey(key)
	if err != nil {
		return nil, false, err
	}

	value, ok := n.store.Get(key)
	if ok {
		return value, true, nil
	}

	return n.ValueLookup(ctx, key)
}

// Ping implements peer.KademliaDHT
func (n *node) Ping(ctx context.Context, addr string) (types.KademliaNode, error) {
	lookupID := xid.New().String()
	channel := n.lookups.Set(lookupID, make(chan types.Message, 1))
	defer n.lookups.Delete(lookupID)

	nonce, err := n.sendRequest(addr, nil, types.TypePing, nil, lookupID)
	if err != nil {
		return types.KademliaNode{}, err
	}

	select {
	case msg := <-channel:
		return types.NodeFromAddr(msg.Sender, msg.From)
	case <-ctx.Done():
		n.requests.Delete(nonce)
		if xerrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.KademliaNode{}, xerrors.Errorf("ping %s: %w", addr, peer.ErrRequestTimeout)
		}
		return types.KademliaNode{}, ctx.Err()
	case <-n.stopper.ShouldStop():
		return types.KademliaNode{}, peer.ErrStopped
	}
}
