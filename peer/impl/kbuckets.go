package impl

import (
	"sort"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"go.dedis.ch/kademlia/types"
)

// nodeValue is a routing table entry.
type nodeValue struct {
	node     types.KademliaNode
	lastSeen time.Time
}

/* ========== KBucket ========== */

// KBucket holds up to K nodes in insertion order and a ring of replacement
// candidates that were refused because the bucket was full.
type KBucket struct {
	sync.Mutex
	k       int
	entries *orderedmap.OrderedMap[string, *nodeValue]

	// cache[head] is the next slot to write, the most recent candidate is
	// at head-1.
	cache    []nodeValue
	cacheLen int
	head     int

	lastLookup time.Time
}

func newKBucket(k, cacheSize int) *KBucket {
	return &KBucket{
		k:       k,
		entries: orderedmap.NewOrderedMap[string, *nodeValue](),
		cache:   make([]nodeValue, cacheSize),
	}
}

// update must be called with the lock held.
func (b *KBucket) update(node types.KademliaNode, ts time.Time) *types.KademliaNode {
	key := node.ID.Key()

	e, ok := b.entries.Get(key)
	if ok {
		// a timestamp never moves backwards, learned nodes come with a zero one
		if ts.After(e.lastSeen) {
			e.lastSeen = ts
			e.node = node
		}
		return nil
	}

	if b.entries.Len() < b.k {
		b.entries.Set(key, &nodeValue{node: node, lastSeen: ts})
		return nil
	}

	b.pushCache(nodeValue{node: node, lastSeen: ts})

	// the entry may be rewritten once the lock is released
	candidate := b.leastRecentlySeen().node
	return &candidate
}

func (b *KBucket) leastRecentlySeen() *nodeValue {
	var lrs *nodeValue
	for el := b.entries.Front(); el != nil; el = el.Next() {
		if lrs == nil || el.Value.lastSeen.Before(lrs.lastSeen) {
			lrs = el.Value
		}
	}
	return lrs
}

func (b *KBucket) pushCache(v nodeValue) {
	size := len(b.cache)

	for i := 0; i < b.cacheLen; i++ {
		slot := (b.head - 1 - i + size) % size
		if b.cache[slot].node.ID.Equal(v.node.ID) {
			if v.lastSeen.After(b.cache[slot].lastSeen) {
				b.cache[slot] = v
			}
			return
		}
	}

	b.cache[b.head] = v
	b.head = (b.head + 1) % size
	if b.cacheLen < size {
		b.cacheLen++
	}
}

func (b *KBucket) popCache() (nodeValue, bool) {
	if b.cacheLen == 0 {
		return nodeValue{}, false
	}

	size := len(b.cache)
	b.head = (b.head - 1 + size) % size
	v := b.cache[b.head]
	b.cache[b.head] = nodeValue{}
	b.cacheLen--

	return v, true
}

func (b *KBucket) nodes() []types.KademliaNode {
	res := make([]types.KademliaNode, 0, b.entries.Len())
	for el := b.entries.Front(); el != nil; el = el.Next() {
		res = append(res, el.Value.node)
	}
	return res
}

/* ========== KBuckets ========== */

// KBuckets is the routing table: one bucket per bit of the ID, bucket i
// holding the nodes whose distance to the own ID has bit length i+1.
type KBuckets struct {
	own     types.NodeID
	buckets []*KBucket
}

// NewKBuckets returns an empty routing table for own.
func NewKBuckets(own types.NodeID, k, cacheSize int) *KBuckets {
	buckets := make([]*KBucket, len(own)*8)
	for i := range buckets {
		buckets[i] = newKBucket(k, cacheSize)
	}

	return &KBuckets{
		own:     own,
		buckets: buckets,
	}
}

// BucketCount returns the number of buckets.
func (t *KBuckets) BucketCount() int {
	return len(t.buckets)
}

func (t *KBuckets) bucketFor(id types.NodeID) *KBucket {
	index := types.BucketIndex(t.own, id)
	if index == types.SelfBucket {
		return nil
	}
	return t.buckets[index]
}

// Update records that node was seen at ts. When its bucket is full the node
// goes to the replacement cache and the least recently seen entry is returned
// so that the caller can ping it.
func (t *KBuckets) Update(node types.KademliaNode, ts time.Time) *types.KademliaNode {
	b := t.bucketFor(node.ID)
	if b == nil {
		return nil
	}

	b.Lock()
	defer b.Unlock()

	return b.update(node, ts)
}

// PingExpired replaces the node id, which did not answer, with the most
// recent replacement candidate. It reports whether a replacement happened.
func (t *KBuckets) PingExpired(id types.NodeID) bool {
	b := t.bucketFor(id)
	if b == nil {
		return false
	}

	b.Lock()
	defer b.Unlock()

	_, ok := b.entries.Get(id.Key())
	if !ok {
		return false
	}

	v, ok := b.popCache()
	if !ok {
		return false
	}

	b.entries.Delete(id.Key())
	b.entries.Set(v.node.ID.Key(), &v)

	return true
}

// Lookup returns at most count nodes close to target, starting with the
// target's bucket and widening to the neighbouring buckets alternately.
func (t *KBuckets) Lookup(target types.NodeID, count int) []types.KademliaNode {
	res := make([]types.KademliaNode, 0, count)
	if count <= 0 {
		return res
	}

	start := types.BucketIndex(t.own, target)
	if start == types.SelfBucket {
		start = 0
	}

	for offset := 0; len(res) < count; offset++ {
		lower, upper := start-offset, start+offset
		if lower < 0 && upper >= len(t.buckets) {
			break
		}

		res = t.collect(res, lower, target, count)
		if offset != 0 {
			res = t.collect(res, upper, target, count)
		}
	}

	sortByDistance(target, res)

	return res
}

func (t *KBuckets) collect(res []types.KademliaNode, index int, target types.NodeID,
	count int) []types.KademliaNode {

	if index < 0 || index >= len(t.buckets) || len(res) >= count {
		return res
	}

	b := t.buckets[index]
	b.Lock()
	nodes := b.nodes()
	b.Unlock()

	sortByDistance(target, nodes)

	remaining := count - len(res)
	if len(nodes) > remaining {
		nodes = nodes[:remaining]
	}

	return append(res, nodes...)
}

// GetInactive returns the nodes of a bucket not seen since the given time.
func (t *KBuckets) GetInactive(index int, since time.Time) []types.KademliaNode {
	if index < 0 || index >= len(t.buckets) {
		return nil
	}

	b := t.buckets[index]
	b.Lock()
	defer b.Unlock()

	var res []types.KademliaNode
	for el := b.entries.Front(); el != nil; el = el.Next() {
		if el.Value.lastSeen.Before(since) {
			res = append(res, el.Value.node)
		}
	}

	return res
}

// NodeLookupPerformed marks the bucket of id as refreshed now.
func (t *KBuckets) NodeLookupPerformed(id types.NodeID) {
	b := t.bucketFor(id)
	if b == nil {
		return
	}

	b.Lock()
	b.lastLookup = time.Now()
	b.Unlock()
}

// GetLastLookup returns when the bucket was last refreshed.
func (t *KBuckets) GetLastLookup(index int) time.Time {
	b := t.buckets[index]
	b.Lock()
	defer b.Unlock()

	return b.lastLookup
}

// Contains reports whether id is in the table.
func (t *KBuckets) Contains(id types.NodeID) bool {
	b := t.bucketFor(id)
	if b == nil {
		return false
	}

	b.Lock()
	defer b.Unlock()

	_, ok := b.entries.Get(id.Key())
	return ok
}

// Remove deletes id from the table.
func (t *KBuckets) Remove(id types.NodeID) {
	b := t.bucketFor(id)
	if b == nil {
		return
	}

	b.Lock()
	b.entries.Delete(id.Key())
	b.Unlock()
}

// Bucket returns the nodes of one bucket.
func (t *KBuckets) Bucket(index int) []types.KademliaNode {
	b := t.buckets[index]
	b.Lock()
	defer b.Unlock()

	return b.nodes()
}

// CacheLen returns the number of replacement candidates of a bucket.
func (t *KBuckets) CacheLen(index int) int {
	b := t.buckets[index]
	b.Lock()
	defer b.Unlock()

	return b.cacheLen
}

// All returns every node of the table.
func (t *KBuckets) All() []types.KademliaNode {
	var res []types.KademliaNode
	for i := range t.buckets {
		res = append(res, t.Bucket(i)...)
	}
	return res
}

// Len returns the number of nodes in the table.
func (t *KBuckets) Len() int {
	n := 0
	for _, b := range t.buckets {
		b.Lock()
		n += b.entries.Len()
		b.Unlock()
	}
	return n
}

func sortByDistance(target types.NodeID, nodes []types.KademliaNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return types.CompareDistance(target, nodes[i].ID, nodes[j].ID) < 0
	})
}
