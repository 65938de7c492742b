package types

import (
	"encoding/binary"
	"net"

	"golang.org/x/xerrors"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

const (
	lengthSize = 4
	flagValue  = 0x7F
	flagInfo   = 0x00
)

// Codec encodes and decodes messages for a given ID and nonce width. All
// integers are big-endian.
//
//	header:      type:1 | sender:IDLength | nonce:NonceLength
//	STORE:       valueLength:4 | key:IDLength | value
//	STORE_ACK:   infoLength:4 | status:1 | info
//	FIND_*:      key:IDLength
//	FIND_NODE_R: count:4 | count * (port:4 | ipv4:4 | id:IDLength)
//	FIND_VALUE_R: valueLength:4 | flag:1 | value
type Codec struct {
	IDLength    int
	NonceLength int
}

// NewCodec returns a codec for the given widths.
func NewCodec(idLength, nonceLength int) Codec {
	return Codec{IDLength: idLength, NonceLength: nonceLength}
}

// DefaultCodec uses 256 bit IDs and 160 bit nonces.
func DefaultCodec() Codec {
	return NewCodec(DefaultIDLength, DefaultNonceLength)
}

// HeaderSize returns the size of the fixed header.
func (c Codec) HeaderSize() int {
	return 1 + c.IDLength + c.NonceLength
}

// TupleSize returns the size of one FIND_NODE_R entry.
func (c Codec) TupleSize() int {
	return 4 + 4 + c.IDLength
}

// Encode serializes m.
func (c Codec) Encode(m Message) ([]byte, error) {
	if err := checkPayload(m.Type, m.Payload); err != nil {
		return nil, err
	}

	out := make([]byte, 0, c.HeaderSize()+c.payloadSize(m.Payload))
	out = append(out, byte(m.Type))
	out = append(out, fit(m.Sender, c.IDLength)...)
	out = append(out, fit(m.Nonce, c.NonceLength)...)

	var err error
	switch p := m.Payload.(type) {
	case EntryKey:
		out = wireEncodeLength(out, len(p.Value))
		out = append(out, fit(p.Key, c.IDLength)...)
		out = append(out, p.Value...)
	case StatusTCPInfo:
		out = wireEncodeLength(out, len(p.Info))
		out = append(out, p.Status)
		out = append(out, p.Info...)
	case FindKey:
		out = append(out, fit(p.Key, c.IDLength)...)
	case Tuples:
		out = wireEncodeLength(out, len(p.Tuples))
		for _, t := range p.Tuples {
			if out, err = c.encodeTuple(out, t); err != nil {
				return nil, err
			}
		}
	case EntryValue:
		out = wireEncodeLength(out, len(p.Value))
		if p.IsValue {
			out = append(out, flagValue)
		} else {
			out = append(out, flagInfo)
		}
		out = append(out, p.Value...)
	}

	if len(out) > MaxDatagramSize {
		return nil, xerrors.Errorf("%s of %d bytes: %w", m.Type, len(out), ErrOversizedMessage)
	}

	return out, nil
}

func (c Codec) encodeTuple(out []byte, t Tuple) ([]byte, error) {
	ip4 := t.IP.To4()
	if ip4 == nil {
		return nil, xerrors.Errorf("tuple address %s is not IPv4: %w", t.IP, ErrPayloadMismatch)
	}
	var port [4]byte
	binary.BigEndian.PutUint32(port[:], t.Port)
	out = append(out, port[:]...)
	out = append(out, ip4...)
	out = append(out, fit(t.ID, c.IDLength)...)
	return out, nil
}

func (c Codec) payloadSize(p Payload) int {
	switch p := p.(type) {
	case EntryKey:
		return lengthSize + c.IDLength + len(p.Value)
	case StatusTCPInfo:
		return lengthSize + 1 + len(p.Info)
	case FindKey:
		return c.IDLength
	case Tuples:
		return lengthSize + len(p.Tuples)*c.TupleSize()
	case EntryValue:
		return lengthSize + 1 + len(p.Value)
	}
	return 0
}

// Decode parses a datagram. The payload is chosen by the type byte only; an
// unknown type gives a message without payload.
func (c Codec) Decode(data []byte) (Message, error) {
	var m Message

	if len(data) < c.HeaderSize() {
		return m, malformed(TypeHeader, "truncated header: %d < %d bytes", len(data), c.HeaderSize())
	}

	m.Type = MessageType(data[0])
	data = data[1:]
	m.Sender = make(NodeID, c.IDLength)
	wireChopSlice(m.Sender, &data)
	m.Nonce = make(Nonce, c.NonceLength)
	wireChopSlice(m.Nonce, &data)

	var err error
	switch m.Type {
	case TypeStore:
		m.Payload, err = c.decodeEntryKey(data)
	case TypeStoreAck:
		m.Payload, err = c.decodeStatus(data)
	case TypeFindNode, TypeFindValue:
		m.Payload, err = c.decodeFindKey(m.Type, data)
	case TypeFindNodeR:
		m.Payload, err = c.decodeTuples(data)
	case TypeFindValueR:
		m.Payload, err = c.decodeEntryValue(data)
	}
	if err != nil {
		return Message{}, err
	}

	return m, nil
}

func (c Codec) decodeEntryKey(data []byte) (Payload, error) {
	var length uint32
	if !wireChopLength(&length, &data) {
		return nil, malformed(TypeStore, "truncated value length")
	}
	key := make(NodeID, c.IDLength)
	if !wireChopSlice(key, &data) {
		return nil, malformed(TypeStore, "truncated key")
	}
	value := make([]byte, 0, int(min(length, uint32(len(data)))))
	if !wireChopBytes(&value, &data, length) {
		return nil, malformed(TypeStore, "value length %d exceeds %d remaining bytes", length, len(data))
	}
	return EntryKey{Key: key, Value: value}, nil
}

func (c Codec) decodeStatus(data []byte) (Payload, error) {
	var length uint32
	if !wireChopLength(&length, &data) {
		return nil, malformed(TypeStoreAck, "truncated info length")
	}
	if len(data) < 1 {
		return nil, malformed(TypeStoreAck, "missing status")
	}
	status := data[0]
	data = data[1:]
	info := make([]byte, 0, int(min(length, uint32(len(data)))))
	if !wireChopBytes(&info, &data, length) {
		return nil, malformed(TypeStoreAck, "info length %d exceeds %d remaining bytes", length, len(data))
	}
	return StatusTCPInfo{Status: status, Info: info}, nil
}

func (c Codec) decodeFindKey(t MessageType, data []byte) (Payload, error) {
	key := make(NodeID, c.IDLength)
	if !wireChopSlice(key, &data) {
		return nil, malformed(t, "truncated key")
	}
	return FindKey{Key: key}, nil
}

func (c Codec) decodeTuples(data []byte) (Payload, error) {
	var count uint32
	if !wireChopLength(&count, &data) {
		return nil, malformed(TypeFindNodeR, "truncated tuple count")
	}
	if uint64(count)*uint64(c.TupleSize()) > uint64(len(data)) {
		return nil, malformed(TypeFindNodeR, "%d tuples do not fit in %d bytes", count, len(data))
	}

	tuples := make([]Tuple, 0, count)
	for i := uint32(0); i < count; i++ {
		var port uint32
		wireChopLength(&port, &data)
		ip := net.IPv4(data[0], data[1], data[2], data[3])
		data = data[4:]
		id := make(NodeID, c.IDLength)
		wireChopSlice(id, &data)
		tuples = append(tuples, Tuple{Port: port, IP: ip, ID: id})
	}
	return Tuples{Tuples: tuples}, nil
}

func (c Codec) decodeEntryValue(data []byte) (Payload, error) {
	var length uint32
	if !wireChopLength(&length, &data) {
		return nil, malformed(TypeFindValueR, "truncated value length")
	}
	if len(data) < 1 {
		return nil, malformed(TypeFindValueR, "missing flag")
	}
	var isValue bool
	switch data[0] {
	case flagValue:
		isValue = true
	case flagInfo:
		isValue = false
	default:
		return nil, malformed(TypeFindValueR, "unknown flag 0x%02x", data[0])
	}
	data = data[1:]
	value := make([]byte, 0, int(min(length, uint32(len(data)))))
	if !wireChopBytes(&value, &data, length) {
		return nil, malformed(TypeFindValueR, "value length %d exceeds %d remaining bytes", length, len(data))
	}
	return EntryValue{IsValue: isValue, Value: value}, nil
}

func checkPayload(t MessageType, p Payload) error {
	ok := false
	switch t {
	case TypeStore:
		_, ok = p.(EntryKey)
	case TypeStoreAck:
		_, ok = p.(StatusTCPInfo)
	case TypeFindNode, TypeFindValue:
		_, ok = p.(FindKey)
	case TypeFindNodeR:
		_, ok = p.(Tuples)
	case TypeFindValueR:
		_, ok = p.(EntryValue)
	default:
		ok = p == nil
	}
	if !ok {
		name := "none"
		if p != nil {
			name = p.Name()
		}
		return xerrors.Errorf("%s with payload %s: %w", t, name, ErrPayloadMismatch)
	}
	return nil
}

// fit left-pads or truncates b to exactly length bytes, keeping the low order
// bytes.
func fit(b []byte, length int) []byte {
	if len(b) == length {
		return b
	}
	out := make([]byte, length)
	if len(b) > length {
		copy(out, b[len(b)-length:])
	} else {
		copy(out[length-len(b):], b)
	}
	return out
}

func min(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func wireEncodeLength(dest []byte, l int) []byte {
	var b [lengthSize]byte
	binary.BigEndian.PutUint32(b[:], uint32(l))
	return append(dest, b[:]...)
}

func wireChopLength(out *uint32, data *[]byte) bool {
	if len(*data) < lengthSize {
		return false
	}
	*out = binary.BigEndian.Uint32(*data)
	*data = (*data)[lengthSize:]
	return true
}

func wireChopSlice(out []byte, data *[]byte) bool {
	if len(*data) < len(out) {
		return false
	}
	copy(out, *data)
	*data = (*data)[len(out):]
	return true
}

func wireChopBytes(out *[]byte, data *[]byte, size uint32) bool {
	if uint64(len(*data)) < uint64(size) {
		return false
	}
	*out = append(*out, (*data)[:size]...)
	*data = (*data)[size:]
	return true
}
