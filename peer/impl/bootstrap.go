package impl

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// Bootstrap implements peer.KademliaDHT. The seed is pinged up to
// BootstrapTries times, each attempt waiting BootstrapTimeout for the PONG.
// The PONG goes through the dispatch loop like any other reply.
func (n *node) Bootstrap(ctx context.Context, addr string) error {
	n.setState(peer.BootstrapPinging)

	var seed types.KademliaNode
	attempt := 0

	op := func() error {
		attempt++

		pingCtx, cancel := context.WithTimeout(ctx, n.conf.BootstrapTimeout)
		defer cancel()

		node, err := n.Ping(pingCtx, addr)
		if err != nil {
			if ctx.Err() != nil || xerrors.Is(err, peer.ErrStopped) {
				return backoff.Permanent(err)
			}

			n.log.Warn().Msgf("<[peer.Peer.Bootstrap] attempt %d/%d to %s failed>: <%s>",
				attempt, n.conf.BootstrapTries, addr, err)
			return err
		}

		seed = node
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(n.conf.PollInterval), uint64(n.conf.BootstrapTries-1)),
		ctx)

	err := backoff.Retry(op, policy)
	if err != nil {
		n.setState(peer.BootstrapFailed)
		return xerrors.Errorf("%s after %d attempts (%v): %w", addr, attempt, err, peer.ErrBootstrapFailed)
	}

	n.table.Update(seed, time.Now())
	n.setState(peer.BootstrapJoined)
	n.startMaintenance()

	n.log.Info().Msgf("<[peer.Peer.Bootstrap] joined through %s>", seed)

	_, err = n.NodeLookup(ctx, n.id)
	if err != nil {
		return xerrors.Errorf("self lookup: %v", err)
	}

	return nil
}
