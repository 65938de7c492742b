package impl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.dedis.ch/kademlia/types"
	"golang.org/x/sync/semaphore"
)

// refreshShortLimit is the number of consecutive refresh lookups returning
// less than K nodes after which a refresh pass stops and waits
// KBucketLookupDelay.
const refreshShortLimit = 3

// startMaintenance starts the background workers once.
func (n *node) startMaintenance() {
	n.maintenanceOnce.Do(func() {
		n.stopper.RunWorker(n.unansweredLoop)
		n.stopper.RunWorker(n.pingLoop)
		n.stopper.RunWorker(n.republishLoop)

		if n.conf.RefreshEnabled {
			n.stopper.RunWorker(n.refreshLoop)
		}
	})
}

/* ========== Unanswered requests ========== */

func (n *node) unansweredLoop() {
	ticker := time.NewTicker(n.conf.UnansweredTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopper.ShouldStop():
			return
		case now := <-ticker.C:
			n.sweepUnanswered(now)
		}
	}
}

// sweepUnanswered expires the cookies older than UnansweredTimeout and
// replaces the peers that did not answer. It returns the number of expired
// cookies.
func (n *node) sweepUnanswered(now time.Time) int {
	expired := n.requests.Sweep(now, n.conf.UnansweredTimeout)

	for _, cookie := range expired {
		if cookie.ExpectedPeer == nil {
			continue
		}

		if n.table.PingExpired(cookie.ExpectedPeer) {
			n.log.Debug().Msgf("<[peer.Peer.sweepUnanswered] replaced %s>", cookie.ExpectedPeer.Short())
		}
	}

	return len(expired)
}

/* ========== Liveness ping ========== */

func (n *node) pingLoop() {
	ticker := time.NewTicker(n.conf.PingTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopper.ShouldStop():
			return
		case now := <-ticker.C:
			n.pingInactive(now)
		}
	}
}

// pingInactive pings every node not seen within PingTimeout.
func (n *node) pingInactive(now time.Time) int {
	since := now.Add(-n.conf.PingTimeout)
	count := 0

	for i := 0; i < n.table.BucketCount(); i++ {
		for _, node := range n.table.GetInactive(i, since) {
			n.pingNode(node)
			count++
		}
	}

	return count
}

/* ========== K-bucket refresh ========== */

func (n *node) refreshLoop() {
	wait := n.conf.KBucketLookupTimeout

	for n.sleep(wait) {
		wait = n.conf.KBucketLookupTimeout

		if n.refreshBuckets(time.Now()) {
			wait = n.conf.KBucketLookupDelay
		}
	}
}

// refreshBuckets looks up a random ID in every bucket not refreshed within
// KBucketLookupTimeout. It reports whether the pass stopped early because the
// network looks small.
func (n *node) refreshBuckets(now time.Time) bool {
	ctx, cancel := n.stopContext(context.Background())
	defer cancel()

	deadline := now.Add(-n.conf.KBucketLookupTimeout)
	short := 0

	for i := 0; i < n.table.BucketCount(); i++ {
		if n.isStopping() {
			return false
		}

		if !n.table.GetLastLookup(i).Before(deadline) {
			continue
		}

		target := types.RandomIDInBucket(n.id, i)

		nodes, err := n.NodeLookup(ctx, target)
		if err != nil {
			n.log.Warn().Msgf("<[peer.Peer.refreshBuckets] bucket %d>: <%s>", i, err)
			continue
		}

		if len(nodes) >= n.conf.K {
			short = 0
			continue
		}

		short++
		if short >= refreshShortLimit {
			return true
		}
	}

	return false
}

/* ========== Republish ========== */

// republishLoop wakes often enough to retry unpublished keys within
// UnpublishedTimeout and to republish the others every RepublishTimeout.
func (n *node) republishLoop() {
	interval := n.conf.UnpublishedTimeout
	if half := n.conf.RepublishTimeout / 2; half < interval {
		interval = half
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopper.ShouldStop():
			return
		case now := <-ticker.C:
			failed := n.republish(now)
			if failed > 0 {
				n.log.Info().Msgf("<[peer.Peer.republish] %d keys not published, retrying in %s>",
					failed, n.conf.UnpublishedTimeout)
			}
		}
	}
}

// republish stores again every owned key not published within
// RepublishTimeout, unpublished keys included. It returns the number of keys
// that could not be published.
func (n *node) republish(now time.Time) int {
	ctx, cancel := n.stopContext(context.Background())
	defer cancel()

	due := n.store.Due(now, n.conf.RepublishTimeout)
	if len(due) == 0 {
		return 0
	}

	sem := semaphore.NewWeighted(int64(n.conf.RepublishWorkers))
	wg := sync.WaitGroup{}

	var failed int32

	for _, key := range due {
		err := sem.Acquire(ctx, 1)
		if err != nil {
			break
		}

		wg.Add(1)
		go func(key types.NodeID) {
			defer wg.Done()
			defer sem.Release(1)

			if !n.republishKey(ctx, key) {
				atomic.AddInt32(&failed, 1)
			}
		}(key)
	}

	wg.Wait()

	return int(atomic.LoadInt32(&failed))
}

func (n *node) republishKey(ctx context.Context, key types.NodeID) bool {
	value, ok := n.store.Get(key)
	if !ok {
		return false
	}

	if types.IsDataEnvelope(value) {
		value = n.adoptNewer(ctx, key, value)
	}

	found, err := n.publish(ctx, key, value)
	if err != nil {
		n.log.Warn().Msgf("<[peer.Peer.republish] %s>: <%s>", key.Short(), err)
	}

	return found && err == nil
}

// adoptNewer replaces a local page by a newer version of the same publisher
// found in the network, so that a republish never overwrites it.
func (n *node) adoptNewer(ctx context.Context, key types.NodeID, local []byte) []byte {
	remote, found, err := n.ValueLookup(ctx, key)
	if err != nil || !found || !types.IsDataEnvelope(remote) {
		return local
	}

	stored, err := n.store.Put(key, remote, time.Now())
	if err != nil || !stored {
		return local
	}

	n.log.Info().Msgf("<[peer.Peer.republish] adopted newer page of %s>", key.Short())

	return remote
}
