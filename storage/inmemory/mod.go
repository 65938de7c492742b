package inmemory

import (
	"sync"

	"go.dedis.ch/kademlia/storage"
)

// NewStorage returns an empty map-backed storage.
func NewStorage() *Storage {
	return &Storage{
		data: make(map[string]storage.Record),
	}
}

// Storage keeps records in memory.
//
// - implements storage.Storage
type Storage struct {
	sync.RWMutex
	data   map[string]storage.Record
	closed bool
}

// Put implements storage.Storage
func (s *Storage) Put(key []byte, rec storage.Record) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	rec.Value = append([]byte(nil), rec.Value...)
	s.data[string(key)] = rec

	return nil
}

// Get implements storage.Storage
func (s *Storage) Get(key []byte) (storage.Record, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return storage.Record{}, storage.ErrClosed
	}

	rec, ok := s.data[string(key)]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}

	rec.Value = append([]byte(nil), rec.Value...)

	return rec, nil
}

// Delete implements storage.Storage
func (s *Storage) Delete(key []byte) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	delete(s.data, string(key))

	return nil
}

// ForEach implements storage.Storage. It iterates over a snapshot, f may call
// back into the storage.
func (s *Storage) ForEach(f func(key []byte, rec storage.Record) bool) error {
	s.RLock()
	if s.closed {
		s.RUnlock()
		return storage.ErrClosed
	}

	snapshot := make(map[string]storage.Record, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.RUnlock()

	for k, v := range snapshot {
		if !f([]byte(k), v) {
			break
		}
	}

	return nil
}

// Len implements storage.Storage
func (s *Storage) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.data)
}

// Close implements storage.Storage
func (s *Storage) Close() error {
	s.Lock()
	defer s.Unlock()

	s.closed = true

	return nil
}
