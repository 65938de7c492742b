package inmemory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kademlia/storage"
	"golang.org/x/xerrors"
)

func Test_InMemory_PutGet(t *testing.T) {
	s := NewStorage()

	_, err := s.Get([]byte("k"))
	require.True(t, xerrors.Is(err, storage.ErrNotFound))

	value := []byte("v1")
	now := time.Now()
	require.NoError(t, s.Put([]byte("k"), storage.Record{Value: value, Timestamp: now}))

	// the stored value does not alias the caller's slice
	value[0] = 'x'

	rec, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), rec.Value)
	require.True(t, now.Equal(rec.Timestamp))
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Put([]byte("k"), storage.Record{Value: []byte("v2"), Timestamp: now}))
	rec, err = s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), rec.Value)

	require.NoError(t, s.Delete([]byte("k")))
	require.NoError(t, s.Delete([]byte("k")))
	require.Equal(t, 0, s.Len())
}

func Test_InMemory_ForEach(t *testing.T) {
	s := NewStorage()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put([]byte(k), storage.Record{Value: []byte(k)}))
	}

	seen := map[string]string{}
	err := s.ForEach(func(key []byte, rec storage.Record) bool {
		seen[string(key)] = string(rec.Value)
		// calling back into the storage does not deadlock
		s.Delete(key)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "a", "b": "b", "c": "c"}, seen)
	require.Equal(t, 0, s.Len())

	require.NoError(t, s.Close())
	require.True(t, xerrors.Is(s.Put([]byte("a"), storage.Record{}), storage.ErrClosed))
}
