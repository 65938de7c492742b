package leveldb

import (
	"bytes"
	"os"
	"sync"
	"time"

	"github.com/jackpal/bencode-go"
	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.dedis.ch/kademlia/storage"
	"golang.org/x/xerrors"
)

// record is the bencoded form of a storage.Record.
type record struct {
	Value     string `bencode:"v"`
	Timestamp int64  `bencode:"ts"`
}

// NewStorage opens, or creates, a leveldb database in dir.
func NewStorage(dir string) (*Storage, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, xerrors.Errorf("failed to create %s: %v", dir, err)
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{ErrorIfExist: false})
	if err != nil {
		log.Warn().Msgf("<[storage.leveldb.NewStorage] failed to open %s, recovering>: <%s>", dir, err)

		db, err = leveldb.RecoverFile(dir, nil)
		if err != nil {
			return nil, xerrors.Errorf("failed to open leveldb at %s: %v", dir, err)
		}
	}

	return &Storage{db: db}, nil
}

// Storage persists records in leveldb.
//
// - implements storage.Storage
type Storage struct {
	sync.RWMutex
	db *leveldb.DB
}

// Put implements storage.Storage
func (s *Storage) Put(key []byte, rec storage.Record) error {
	s.RLock()
	defer s.RUnlock()

	if s.db == nil {
		return storage.ErrClosed
	}

	var buf bytes.Buffer
	err := bencode.Marshal(&buf, record{
		Value:     string(rec.Value),
		Timestamp: rec.Timestamp.UnixNano(),
	})
	if err != nil {
		return xerrors.Errorf("failed to encode record: %v", err)
	}

	err = s.db.Put(key, buf.Bytes(), nil)
	if err != nil {
		return xerrors.Errorf("failed to put record: %v", err)
	}

	return nil
}

// Get implements storage.Storage
func (s *Storage) Get(key []byte) (storage.Record, error) {
	s.RLock()
	defer s.RUnlock()

	if s.db == nil {
		return storage.Record{}, storage.ErrClosed
	}

	data, err := s.db.Get(key, nil)
	if xerrors.Is(err, leveldb.ErrNotFound) {
		return storage.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Record{}, xerrors.Errorf("failed to get record: %v", err)
	}

	return decode(data)
}

// Delete implements storage.Storage
func (s *Storage) Delete(key []byte) error {
	s.RLock()
	defer s.RUnlock()

	if s.db == nil {
		return storage.ErrClosed
	}

	return s.db.Delete(key, nil)
}

// ForEach implements storage.Storage. Undecodable records are logged and
// skipped.
func (s *Storage) ForEach(f func(key []byte, rec storage.Record) bool) error {
	s.RLock()
	if s.db == nil {
		s.RUnlock()
		return storage.ErrClosed
	}

	type entry struct {
		key []byte
		rec storage.Record
	}

	var entries []entry

	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		rec, err := decode(iter.Value())
		if err != nil {
			log.Warn().Msgf("<[storage.leveldb.ForEach] skipping record %x>: <%s>", iter.Key(), err)
			continue
		}
		entries = append(entries, entry{key: append([]byte(nil), iter.Key()...), rec: rec})
	}
	iter.Release()
	err := iter.Error()
	s.RUnlock()

	if err != nil {
		return xerrors.Errorf("failed to iterate: %v", err)
	}

	for _, e := range entries {
		if !f(e.key, e.rec) {
			break
		}
	}

	return nil
}

// Len implements storage.Storage
func (s *Storage) Len() int {
	n := 0
	s.ForEach(func([]byte, storage.Record) bool {
		n++
		return true
	})
	return n
}

// Close implements storage.Storage
func (s *Storage) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

func decode(data []byte) (storage.Record, error) {
	var rec record
	err := bencode.Unmarshal(bytes.NewReader(data), &rec)
	if err != nil {
		return storage.Record{}, xerrors.Errorf("failed to decode record: %v", err)
	}

	return storage.Record{
		Value:     []byte(rec.Value),
		Timestamp: time.Unix(0, rec.Timestamp),
	}, nil
}
