package types

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func testHeader(c Codec, t MessageType) Message {
	return Message{
		Type:   t,
		Sender: RandomNodeID(c.IDLength),
		Nonce:  RandomNonce(c.NonceLength),
	}
}

func Test_Codec_RoundTrip(t *testing.T) {
	c := DefaultCodec()

	payloads := map[MessageType]Payload{
		TypePing:       nil,
		TypePong:       nil,
		TypeStore:      EntryKey{Key: RandomNodeID(32), Value: []byte("hello")},
		TypeStoreAck:   StatusTCPInfo{Status: StatusRejected, Info: []byte("older page")},
		TypeFindNode:   FindKey{Key: RandomNodeID(32)},
		TypeFindValue:  FindKey{Key: RandomNodeID(32)},
		TypeFindValueR: EntryValue{IsValue: true, Value: []byte("v")},
		TypeFindNodeR: Tuples{Tuples: []Tuple{
			{Port: 4000, IP: net.IPv4(127, 0, 0, 1), ID: RandomNodeID(32)},
			{Port: 65535, IP: net.IPv4(10, 1, 2, 3), ID: RandomNodeID(32)},
		}},
	}

	for typ, p := range payloads {
		m := testHeader(c, typ)
		m.Payload = p

		buf, err := c.Encode(m)
		require.NoError(t, err, typ.String())
		require.Equal(t, byte(typ), buf[0])

		res, err := c.Decode(buf)
		require.NoError(t, err, typ.String())
		require.Equal(t, m, res, typ.String())
	}
}

func Test_Codec_Layout(t *testing.T) {
	c := NewCodec(4, 2)

	m := Message{
		Type:    TypeStore,
		Sender:  NodeID{1, 2, 3, 4},
		Nonce:   Nonce{9, 9},
		Payload: EntryKey{Key: NodeID{0xa, 0xb, 0xc, 0xd}, Value: []byte{0xff}},
	}

	buf, err := c.Encode(m)
	require.NoError(t, err)
	require.Equal(t, []byte{
		3,
		1, 2, 3, 4,
		9, 9,
		0, 0, 0, 1,
		0xa, 0xb, 0xc, 0xd,
		0xff,
	}, buf)

	m = Message{
		Type:   TypeFindNodeR,
		Sender: NodeID{1, 2, 3, 4},
		Nonce:  Nonce{9, 9},
		Payload: Tuples{Tuples: []Tuple{
			{Port: 0x0102, IP: net.IPv4(192, 168, 0, 1), ID: NodeID{5, 6, 7, 8}},
		}},
	}

	buf, err = c.Encode(m)
	require.NoError(t, err)
	require.Equal(t, []byte{
		6,
		1, 2, 3, 4,
		9, 9,
		0, 0, 0, 1,
		0, 0, 1, 2,
		192, 168, 0, 1,
		5, 6, 7, 8,
	}, buf)

	m = Message{
		Type:    TypeFindValueR,
		Sender:  NodeID{1, 2, 3, 4},
		Nonce:   Nonce{9, 9},
		Payload: EntryValue{IsValue: false, Value: []byte("no")},
	}

	buf, err = c.Encode(m)
	require.NoError(t, err)
	require.Equal(t, []byte{8, 1, 2, 3, 4, 9, 9, 0, 0, 0, 2, 0x00, 'n', 'o'}, buf)
}

func Test_Codec_FourTuples(t *testing.T) {
	c := DefaultCodec()

	tuples := make([]Tuple, 4)
	for i := range tuples {
		tuples[i] = Tuple{
			Port: uint32(5000 + i),
			IP:   net.IPv4(10, 0, 0, byte(i+1)),
			ID:   RandomNodeID(c.IDLength),
		}
	}

	m := testHeader(c, TypeFindNodeR)
	m.Payload = Tuples{Tuples: tuples}

	buf, err := c.Encode(m)
	require.NoError(t, err)
	require.Len(t, buf, c.HeaderSize()+4+4*c.TupleSize())
	require.Equal(t, 4+4+c.IDLength, c.TupleSize())

	res, err := c.Decode(buf)
	require.NoError(t, err)

	decoded, ok := res.Payload.(Tuples)
	require.True(t, ok)
	require.Len(t, decoded.Tuples, 4)

	for i, tuple := range decoded.Tuples {
		require.Equal(t, tuples[i].ID, tuple.ID)
		require.Equal(t, tuples[i].Port, tuple.Port)
		require.True(t, tuples[i].IP.Equal(tuple.IP))
	}
}

func Test_Codec_FitsShortIDs(t *testing.T) {
	c := NewCodec(4, 2)

	m := Message{Type: TypePing, Sender: NodeID{7}, Nonce: Nonce{1, 2}}
	buf, err := c.Encode(m)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 7, 1, 2}, buf)
}

func Test_Codec_EmptyValues(t *testing.T) {
	c := DefaultCodec()

	m := testHeader(c, TypeStore)
	m.Payload = EntryKey{Key: RandomNodeID(32), Value: []byte{}}
	buf, err := c.Encode(m)
	require.NoError(t, err)
	res, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, m, res)

	m = testHeader(c, TypeFindNodeR)
	m.Payload = Tuples{Tuples: []Tuple{}}
	buf, err = c.Encode(m)
	require.NoError(t, err)
	require.Len(t, buf, c.HeaderSize()+4)
	res, err = c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, m, res)
}

func Test_Codec_MaxDatagram(t *testing.T) {
	c := DefaultCodec()
	overhead := c.HeaderSize() + 4 + c.IDLength

	m := testHeader(c, TypeStore)
	m.Payload = EntryKey{Key: RandomNodeID(32), Value: bytes.Repeat([]byte{1}, MaxDatagramSize-overhead)}
	buf, err := c.Encode(m)
	require.NoError(t, err)
	require.Len(t, buf, MaxDatagramSize)

	res, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, m, res)

	m.Payload = EntryKey{Key: RandomNodeID(32), Value: bytes.Repeat([]byte{1}, MaxDatagramSize-overhead+1)}
	_, err = c.Encode(m)
	require.True(t, xerrors.Is(err, ErrOversizedMessage))
}

func Test_Codec_PayloadMismatch(t *testing.T) {
	c := DefaultCodec()

	m := testHeader(c, TypeStore)
	m.Payload = FindKey{Key: RandomNodeID(32)}
	_, err := c.Encode(m)
	require.True(t, xerrors.Is(err, ErrPayloadMismatch))

	m = testHeader(c, TypePing)
	m.Payload = FindKey{Key: RandomNodeID(32)}
	_, err = c.Encode(m)
	require.True(t, xerrors.Is(err, ErrPayloadMismatch))

	m = testHeader(c, TypeFindNodeR)
	m.Payload = Tuples{Tuples: []Tuple{{Port: 1, IP: net.ParseIP("::2"), ID: RandomNodeID(32)}}}
	_, err = c.Encode(m)
	require.True(t, xerrors.Is(err, ErrPayloadMismatch))
}

func Test_Codec_Malformed(t *testing.T) {
	c := DefaultCodec()

	encode := func(m Message) []byte {
		buf, err := c.Encode(m)
		require.NoError(t, err)
		return buf
	}

	store := testHeader(c, TypeStore)
	store.Payload = EntryKey{Key: RandomNodeID(32), Value: []byte("value")}
	storeBuf := encode(store)

	tuples := testHeader(c, TypeFindNodeR)
	tuples.Payload = Tuples{Tuples: []Tuple{{Port: 1, IP: net.IPv4(1, 1, 1, 1), ID: RandomNodeID(32)}}}
	tuplesBuf := encode(tuples)

	value := testHeader(c, TypeFindValueR)
	value.Payload = EntryValue{IsValue: true, Value: []byte("value")}
	valueBuf := encode(value)

	badFlag := append([]byte(nil), valueBuf...)
	badFlag[c.HeaderSize()+4] = 0x01

	cases := map[string][]byte{
		"empty":            {},
		"short header":     storeBuf[:c.HeaderSize()-1],
		"no length":        storeBuf[:c.HeaderSize()+2],
		"short key":        storeBuf[:c.HeaderSize()+4+10],
		"short value":      storeBuf[:len(storeBuf)-1],
		"short find key":   encode(Message{Type: TypeFindNode, Sender: store.Sender, Nonce: store.Nonce, Payload: FindKey{Key: RandomNodeID(32)}})[:c.HeaderSize()+5],
		"short tuple":      tuplesBuf[:len(tuplesBuf)-1],
		"value no flag":    valueBuf[:c.HeaderSize()+4],
		"unknown flag":     badFlag,
		"ack no status":    encode(Message{Type: TypeStoreAck, Sender: store.Sender, Nonce: store.Nonce, Payload: StatusTCPInfo{}})[:c.HeaderSize()+4],
		"find node header": append([]byte{byte(TypeFindNode)}, storeBuf[1:c.HeaderSize()]...),
	}

	for name, buf := range cases {
		_, err := c.Decode(buf)
		require.Error(t, err, name)
		require.True(t, xerrors.Is(err, ErrMalformedMessage), name)

		var detail *MalformedMessageError
		require.True(t, xerrors.As(err, &detail), name)
	}
}

func Test_Codec_HugeTupleCount(t *testing.T) {
	c := DefaultCodec()

	m := testHeader(c, TypeFindNodeR)
	m.Payload = Tuples{}
	buf, err := c.Encode(m)
	require.NoError(t, err)

	copy(buf[c.HeaderSize():], []byte{0xff, 0xff, 0xff, 0xff})
	_, err = c.Decode(buf)
	require.True(t, xerrors.Is(err, ErrMalformedMessage))
}

func Test_Codec_UnknownType(t *testing.T) {
	c := DefaultCodec()

	m := testHeader(c, TypePing)
	buf, err := c.Encode(m)
	require.NoError(t, err)

	buf[0] = 42
	buf = append(buf, 1, 2, 3)

	res, err := c.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, MessageType(42), res.Type)
	require.False(t, res.Type.Known())
	require.Nil(t, res.Payload)
	require.Equal(t, m.Sender, res.Sender)
}

func Test_Codec_DecodeDoesNotAlias(t *testing.T) {
	c := DefaultCodec()

	m := testHeader(c, TypeStore)
	m.Payload = EntryKey{Key: RandomNodeID(32), Value: []byte("abc")}
	buf, err := c.Encode(m)
	require.NoError(t, err)

	res, err := c.Decode(buf)
	require.NoError(t, err)

	for i := range buf {
		buf[i] = 0
	}
	require.Equal(t, m, res)
}
