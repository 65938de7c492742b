package impl

import (
	"sync"
	"time"

	"go.dedis.ch/kademlia/types"
)

/* ========== RequestTable ========== */

// requestCookie remembers an outgoing request until its reply arrives.
// ExpectedPeer is nil when the peer's ID is not known yet, as for the
// bootstrap ping. An empty LookupID means nobody waits for the reply.
type requestCookie struct {
	ExpectedPeer types.NodeID
	SendTime     time.Time
	LookupID     string
}

// RequestTable is a thread-safe map nonce -> cookie.
type RequestTable struct {
	sync.Mutex
	cookies map[string]requestCookie
}

// NewRequestTable returns an empty table.
func NewRequestTable() *RequestTable {
	return &RequestTable{cookies: make(map[string]requestCookie)}
}

func (r *RequestTable) Set(nonce types.Nonce, cookie requestCookie) {
	r.Lock()
	defer r.Unlock()

	r.cookies[nonce.Key()] = cookie
}

func (r *RequestTable) Get(nonce types.Nonce) (requestCookie, bool) {
	r.Lock()
	defer r.Unlock()

	cookie, ok := r.cookies[nonce.Key()]
	return cookie, ok
}

// Take removes and returns the cookie of nonce if sender is the peer the
// request was sent to. A mismatching reply leaves the cookie in place.
func (r *RequestTable) Take(nonce types.Nonce, sender types.NodeID) (requestCookie, bool) {
	r.Lock()
	defer r.Unlock()

	cookie, ok := r.cookies[nonce.Key()]
	if !ok {
		return requestCookie{}, false
	}

	if cookie.ExpectedPeer != nil && !cookie.ExpectedPeer.Equal(sender) {
		return requestCookie{}, false
	}

	delete(r.cookies, nonce.Key())

	return cookie, true
}

func (r *RequestTable) Delete(nonce types.Nonce) {
	r.Lock()
	defer r.Unlock()

	delete(r.cookies, nonce.Key())
}

// Sweep removes the cookies sent before now-timeout and returns them.
func (r *RequestTable) Sweep(now time.Time, timeout time.Duration) []requestCookie {
	r.Lock()
	defer r.Unlock()

	deadline := now.Add(-timeout)

	var expired []requestCookie
	for key, cookie := range r.cookies {
		if cookie.SendTime.Before(deadline) {
			expired = append(expired, cookie)
			delete(r.cookies, key)
		}
	}

	return expired
}

func (r *RequestTable) Len() int {
	r.Lock()
	defer r.Unlock()

	return len(r.cookies)
}

/* ========== LookupChannels ========== */

// LookupChannels is a thread-safe map lookupID -> channel.
// Used for asynchronous notification: when the dispatch loop receives a reply
// whose cookie names a lookup, the message is sent to that lookup's channel.
type LookupChannels struct {
	sync.Mutex
	channelsMap map[string]chan types.Message
}

// NewLookupChannels returns an empty map.
func NewLookupChannels() *LookupChannels {
	return &LookupChannels{channelsMap: make(map[string]chan types.Message)}
}

func (r *LookupChannels) Set(key string, val chan types.Message) chan types.Message {
	r.Lock()
	defer r.Unlock()

	r.channelsMap[key] = val
	return val
}

func (r *LookupChannels) Get(key string) (chan types.Message, bool) {
	r.Lock()
	defer r.Unlock()

	val, ok := r.channelsMap[key]
	return val, ok
}

func (r *LookupChannels) Delete(key string) {
	r.Lock()
	defer r.Unlock()

	delete(r.channelsMap, key)
}

func (r *LookupChannels) Len() int {
	r.Lock()
	defer r.Unlock()

	return len(r.channelsMap)
}
