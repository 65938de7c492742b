package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ID_BucketIndex(t *testing.T) {
	own := NodeID{0, 0, 0, 0}

	require.Equal(t, SelfBucket, BucketIndex(own, own))
	require.Equal(t, 0, BucketIndex(own, NodeID{0, 0, 0, 1}))
	require.Equal(t, 1, BucketIndex(own, NodeID{0, 0, 0, 3}))
	require.Equal(t, 8, BucketIndex(own, NodeID{0, 0, 1, 0}))
	require.Equal(t, 31, BucketIndex(own, NodeID{0x80, 0, 0, 0}))

	own = NodeID{0xff, 0xff, 0xff, 0xff}
	require.Equal(t, 31, BucketIndex(own, NodeID{0, 0, 0, 0}))
	require.Equal(t, 0, BucketIndex(own, NodeID{0xff, 0xff, 0xff, 0xfe}))
}

func Test_ID_CompareDistance(t *testing.T) {
	target := NodeID{0, 0, 0, 8}

	require.Equal(t, -1, CompareDistance(target, NodeID{0, 0, 0, 9}, NodeID{0, 0, 0, 0}))
	require.Equal(t, 1, CompareDistance(target, NodeID{1, 0, 0, 8}, NodeID{0, 0, 0, 7}))
	require.Equal(t, 0, CompareDistance(target, NodeID{0, 0, 0, 1}, NodeID{0, 0, 0, 1}))
	require.Equal(t, -1, CompareDistance(target, target, NodeID{0, 0, 0, 9}))
}

func Test_ID_FromBig(t *testing.T) {
	id := NodeIDFromBig(big.NewInt(0x0102), 4)
	require.Equal(t, NodeID{0, 0, 1, 2}, id)

	v, ok := new(big.Int).SetString("0102030405", 16)
	require.True(t, ok)
	require.Equal(t, NodeID{2, 3, 4, 5}, NodeIDFromBig(v, 4))

	id, err := NodeIDFromHex("ff", 2)
	require.NoError(t, err)
	require.Equal(t, NodeID{0, 0xff}, id)
	require.Equal(t, "00ff", id.String())
	require.Equal(t, int64(255), id.Big().Int64())

	_, err = NodeIDFromHex("not hex", 2)
	require.Error(t, err)
}

func Test_ID_BitLen(t *testing.T) {
	require.Equal(t, 0, NodeID{0, 0}.BitLen())
	require.Equal(t, 1, NodeID{0, 1}.BitLen())
	require.Equal(t, 9, NodeID{1, 0}.BitLen())
	require.Equal(t, 16, NodeID{0x80, 0}.BitLen())
}

func Test_ID_RandomInBucket(t *testing.T) {
	own := RandomNodeID(DefaultIDLength)

	for _, index := range []int{0, 1, 7, 8, 100, 255} {
		for i := 0; i < 20; i++ {
			id := RandomIDInBucket(own, index)
			require.Equal(t, index, BucketIndex(own, id), "index %d", index)
		}
	}

	require.Equal(t, own, RandomIDInBucket(own, 256))
}

func Test_ID_KeyForContent(t *testing.T) {
	a := KeyForContent([]byte("hello"), DefaultIDLength)
	b := KeyForContent([]byte("hello"), DefaultIDLength)
	c := KeyForContent([]byte("hello!"), DefaultIDLength)

	require.Len(t, a, DefaultIDLength)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	require.Len(t, KeyForPublicKey([]byte("pub"), 20), 20)
}

func Test_ID_Copy(t *testing.T) {
	id := NodeID{1, 2, 3}
	cp := id.Copy()
	cp[0] = 9

	require.Equal(t, byte(1), id[0])
	require.True(t, id.Equal(NodeID{1, 2, 3}))
	require.Equal(t, "010203", id.Short())
	require.Len(t, RandomNonce(DefaultNonceLength), DefaultNonceLength)
}
