package storage

import (
	"time"

	"golang.org/x/xerrors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = xerrors.New("key not found")

// ErrClosed is returned once the storage is closed.
var ErrClosed = xerrors.New("storage closed")

// Record is a stored value with the time it was last written. Signed pages
// are stored as their encoded envelope, the storage does not interpret
// values.
type Record struct {
	Value     []byte
	Timestamp time.Time
}

// Storage is the key/value collaborator backing a node's local table. Keys are
// the raw bytes of a DHT key. Implementations must be safe for concurrent
// use.
type Storage interface {
	// Put stores rec under key, replacing any previous record.
	Put(key []byte, rec Record) error

	// Get returns the record under key or ErrNotFound.
	Get(key []byte) (Record, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// ForEach calls f for every record until f returns false.
	ForEach(f func(key []byte, rec Record) bool) error

	// Len returns the number of records.
	Len() int

	// Close releases the storage.
	Close() error
}
