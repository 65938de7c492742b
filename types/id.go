package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"math/bits"

	"lukechampine.com/blake3"
)

// DefaultIDLength is the width in bytes of node IDs and keys (256 bits).
const DefaultIDLength = 32

// DefaultNonceLength is the width in bytes of the per-request random nonce.
const DefaultNonceLength = 20

// SelfBucket is returned by BucketIndex when both IDs are equal.
const SelfBucket = -1

// NodeID identifies a peer and doubles as a content key. It is a big-endian
// unsigned integer of fixed width.
type NodeID []byte

// NewNodeID returns a zero ID of the given width.
func NewNodeID(length int) NodeID {
	return make(NodeID, length)
}

// RandomNodeID returns a uniformly random ID of the given width.
func RandomNodeID(length int) NodeID {
	id := make(NodeID, length)
	_, err := rand.Read(id)
	if err != nil {
		panic("[types.RandomNodeID] no randomness available: " + err.Error())
	}
	return id
}

// NodeIDFromBig converts an arbitrary precision integer into an ID of the
// given width, left-padding with zeros or keeping the low order bytes.
func NodeIDFromBig(v *big.Int, length int) NodeID {
	id := make(NodeID, length)
	b := new(big.Int).Abs(v).Bytes()
	if len(b) > length {
		b = b[len(b)-length:]
	}
	copy(id[length-len(b):], b)
	return id
}

// NodeIDFromHex parses a hex string into an ID of the given width.
func NodeIDFromHex(s string, length int) (NodeID, error) {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, &MalformedMessageError{Reason: "invalid hex id " + s}
	}
	return NodeIDFromBig(v, length), nil
}

// KeyForContent hashes arbitrary data into a key of the given width.
func KeyForContent(data []byte, length int) NodeID {
	return hashToID(data, length)
}

// KeyForPublicKey returns the key a publisher's page is stored under.
func KeyForPublicKey(publicKey []byte, length int) NodeID {
	return hashToID(publicKey, length)
}

func hashToID(data []byte, length int) NodeID {
	out := make([]byte, length)
	h := blake3.New(length, nil)
	h.Write(data)
	return NodeID(h.Sum(out[:0]))
}

// Big returns the ID as an unsigned integer.
func (id NodeID) Big() *big.Int {
	return new(big.Int).SetBytes(id)
}

// String returns the ID in hex.
func (id NodeID) String() string {
	return hex.EncodeToString(id)
}

// Short returns the first 4 bytes in hex, for log lines.
func (id NodeID) Short() string {
	if len(id) > 4 {
		return hex.EncodeToString(id[:4])
	}
	return hex.EncodeToString(id)
}

// Key returns a string usable as a map key.
func (id NodeID) Key() string {
	return string(id)
}

// Equal reports whether both IDs are the same.
func (id NodeID) Equal(other NodeID) bool {
	return bytes.Equal(id, other)
}

// Copy returns a copy that does not share memory with id.
func (id NodeID) Copy() NodeID {
	return append(NodeID(nil), id...)
}

// Xor returns the XOR distance between id and other. Both must have the same
// width.
func (id NodeID) Xor(other NodeID) NodeID {
	res := make(NodeID, len(id))
	for i := range id {
		res[i] = id[i] ^ other[i]
	}
	return res
}

// BitLen returns the minimum number of bits needed to represent id.
func (id NodeID) BitLen() int {
	for i, b := range id {
		if b != 0 {
			return (len(id)-i-1)*8 + bits.Len8(b)
		}
	}
	return 0
}

// BucketIndex returns bitlen(own XOR id) - 1, or SelfBucket when equal.
func BucketIndex(own, id NodeID) int {
	return own.Xor(id).BitLen() - 1
}

// CompareDistance returns -1, 0 or +1 depending on whether a is closer to,
// as close as or further from target than b.
func CompareDistance(target, a, b NodeID) int {
	for i := range target {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// RandomIDInBucket returns a random ID whose bucket index relative to own is
// index: the bit at position index is flipped and all lower bits are random.
func RandomIDInBucket(own NodeID, index int) NodeID {
	id := own.Copy()
	width := len(own) * 8
	if index < 0 || index >= width {
		return id
	}

	noise := RandomNodeID(len(own))
	for bit := 0; bit < index; bit++ {
		setBit(id, bit, getBit(noise, bit))
	}
	setBit(id, index, !getBit(own, index))
	return id
}

// bit 0 is the least significant bit of the last byte
func getBit(id NodeID, bit int) bool {
	return id[len(id)-1-bit/8]&(1<<(uint(bit)%8)) != 0
}

func setBit(id NodeID, bit int, v bool) {
	mask := byte(1 << (uint(bit) % 8))
	if v {
		id[len(id)-1-bit/8] |= mask
	} else {
		id[len(id)-1-bit/8] &^= mask
	}
}

// Nonce correlates a reply with the request that caused it.
type Nonce []byte

// RandomNonce returns a fresh random nonce of the given width.
func RandomNonce(length int) Nonce {
	return Nonce(RandomNodeID(length))
}

// String returns the nonce in hex.
func (n Nonce) String() string {
	return hex.EncodeToString(n)
}

// Key returns a string usable as a map key.
func (n Nonce) Key() string {
	return string(n)
}
