package types

import (
	"bytes"
	"time"

	"github.com/jackpal/bencode-go"
	"golang.org/x/xerrors"
)

// dataMagic prefixes every value that carries a signed page. A value is only
// taken for a page when the rest decodes as one, other values starting with
// these bytes stay raw.
var dataMagic = []byte("KDAT")

// Page is the signed part of a published record.
type Page struct {
	Payload   []byte
	Timestamp time.Time
}

// Data is a page together with its publisher's signature and public key.
type Data struct {
	Page      Page
	Signature []byte
	PublicKey []byte
}

// pageRecord and dataRecord are the bencoded forms. Byte fields are kept as
// strings, bencode has no separate byte string type.
type pageRecord struct {
	Payload   string `bencode:"payload"`
	Timestamp int64  `bencode:"ts"`
}

type dataRecord struct {
	Payload   string `bencode:"payload"`
	Timestamp int64  `bencode:"ts"`
	Signature string `bencode:"sig"`
	PublicKey string `bencode:"pub"`
}

// NewPage returns a page stamped with the current time.
func NewPage(payload []byte) Page {
	return Page{Payload: payload, Timestamp: time.Now()}
}

// Bytes returns the canonical encoding of the page, the input of signatures.
func (p Page) Bytes() []byte {
	var buf bytes.Buffer
	// encoding a flat struct of strings and integers does not fail
	_ = bencode.Marshal(&buf, pageRecord{
		Payload:   string(p.Payload),
		Timestamp: p.Timestamp.UnixNano(),
	})
	return buf.Bytes()
}

// Author returns the key the data is stored under for the given ID width.
func (d Data) Author(length int) NodeID {
	return KeyForPublicKey(d.PublicKey, length)
}

// CompareDate returns -1, 0 or +1 when d is older than, as old as or newer
// than other. Pages of different publishers cannot be compared.
func (d Data) CompareDate(other Data) (int, error) {
	if !bytes.Equal(d.PublicKey, other.PublicKey) {
		return 0, ErrDifferentAuthors
	}

	switch {
	case d.Page.Timestamp.Before(other.Page.Timestamp):
		return -1, nil
	case d.Page.Timestamp.After(other.Page.Timestamp):
		return 1, nil
	default:
		return 0, nil
	}
}

// Encode returns the value stored in the DHT for d.
func (d Data) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(dataMagic)

	err := bencode.Marshal(&buf, dataRecord{
		Payload:   string(d.Page.Payload),
		Timestamp: d.Page.Timestamp.UnixNano(),
		Signature: string(d.Signature),
		PublicKey: string(d.PublicKey),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to encode data: %v", err)
	}

	return buf.Bytes(), nil
}

// IsDataEnvelope reports whether value is an encoded Data: the magic prefix
// followed by a record carrying a signature and a public key.
func IsDataEnvelope(value []byte) bool {
	_, err := DecodeData(value)
	return err == nil
}

// DecodeData parses a value produced by Data.Encode.
func DecodeData(value []byte) (Data, error) {
	if !bytes.HasPrefix(value, dataMagic) {
		return Data{}, xerrors.New("value is not a data envelope")
	}

	var rec dataRecord
	err := bencode.Unmarshal(bytes.NewReader(value[len(dataMagic):]), &rec)
	if err != nil {
		return Data{}, xerrors.Errorf("failed to decode data: %v", err)
	}

	if rec.Signature == "" || rec.PublicKey == "" {
		return Data{}, xerrors.New("data without signature or public key")
	}

	return Data{
		Page: Page{
			Payload:   []byte(rec.Payload),
			Timestamp: time.Unix(0, rec.Timestamp),
		},
		Signature: []byte(rec.Signature),
		PublicKey: []byte(rec.PublicKey),
	}, nil
}
