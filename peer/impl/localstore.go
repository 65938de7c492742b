package impl

import (
	"sync"
	"time"

	"go.dedis.ch/kademlia/keys"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/storage"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// localStore maps keys to the timestamp of the value held, the bytes live in
// the storage. It also tracks the keys this node owns and must republish.
//
// Raw values are stamped with their local receive time and the last write
// wins. Signed pages are verified and only replace an older page of the same
// publisher.
type localStore struct {
	sync.Mutex
	storage    storage.Storage
	timestamps map[string]time.Time

	// owned key -> last successful publish, zero when unpublished
	owned map[string]time.Time
}

func newLocalStore(s storage.Storage) (*localStore, error) {
	l := &localStore{
		storage:    s,
		timestamps: make(map[string]time.Time),
		owned:      make(map[string]time.Time),
	}

	err := s.ForEach(func(key []byte, rec storage.Record) bool {
		l.timestamps[string(key)] = rec.Timestamp
		return true
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to load storage: %v", err)
	}

	return l, nil
}

// Put stores value under key if accepted. It returns false with a nil error
// for a value refused by the newest-wins rule.
func (l *localStore) Put(key types.NodeID, value []byte, now time.Time) (bool, error) {
	l.Lock()
	defer l.Unlock()

	prev, err := l.storage.Get(key)
	exists := err == nil
	if err != nil && !xerrors.Is(err, storage.ErrNotFound) {
		return false, xerrors.Errorf("failed to read %s: %v", key.Short(), err)
	}

	ts := now

	data, err := types.DecodeData(value)
	if err == nil {
		if !data.Author(len(key)).Equal(key) {
			return false, xerrors.Errorf("page of %s stored under %s: %w",
				data.Author(len(key)).Short(), key.Short(), types.ErrDifferentAuthors)
		}

		if !keys.VerifyData(data) {
			return false, peer.ErrInvalidSignature
		}

		if exists {
			old, err := types.DecodeData(prev.Value)
			if err == nil {
				cmp, err := data.CompareDate(old)
				if err != nil {
					return false, err
				}
				if cmp <= 0 {
					return false, nil
				}
			}
		}

		ts = data.Page.Timestamp
	} else if exists && types.IsDataEnvelope(prev.Value) {
		// a raw value never replaces a signed page
		return false, nil
	}

	err = l.storage.Put(key, storage.Record{Value: value, Timestamp: ts})
	if err != nil {
		return false, xerrors.Errorf("failed to store %s: %v", key.Short(), err)
	}

	l.timestamps[key.Key()] = ts

	return true, nil
}

// Get returns the value under key.
func (l *localStore) Get(key types.NodeID) ([]byte, bool) {
	rec, err := l.storage.Get(key)
	if err != nil {
		return nil, false
	}
	return rec.Value, true
}

// Timestamp returns the timestamp of the value under key.
func (l *localStore) Timestamp(key types.NodeID) (time.Time, bool) {
	l.Lock()
	defer l.Unlock()

	ts, ok := l.timestamps[key.Key()]
	return ts, ok
}

// Own marks key as owned and not yet published.
func (l *localStore) Own(key types.NodeID) {
	l.Lock()
	defer l.Unlock()

	l.owned[key.Key()] = time.Time{}
}

// MarkPublished records a successful network store of an owned key.
func (l *localStore) MarkPublished(key types.NodeID, at time.Time) {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.owned[key.Key()]; ok {
		l.owned[key.Key()] = at
	}
}

// MarkUnpublished records a failed network store of an owned key.
func (l *localStore) MarkUnpublished(key types.NodeID) {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.owned[key.Key()]; ok {
		l.owned[key.Key()] = time.Time{}
	}
}

// Due returns the owned keys not published since now-timeout, unpublished
// ones included.
func (l *localStore) Due(now time.Time, timeout time.Duration) []types.NodeID {
	l.Lock()
	defer l.Unlock()

	deadline := now.Add(-timeout)

	var res []types.NodeID
	for key, at := range l.owned {
		if at.Before(deadline) {
			res = append(res, types.NodeID(key))
		}
	}

	return res
}

// HasUnpublished reports whether an owned key is waiting for a publish.
func (l *localStore) HasUnpublished() bool {
	l.Lock()
	defer l.Unlock()

	for _, at := range l.owned {
		if at.IsZero() {
			return true
		}
	}
	return false
}

// Len returns the number of values held.
func (l *localStore) Len() int {
	l.Lock()
	defer l.Unlock()

	return len(l.timestamps)
}
