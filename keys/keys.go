package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"

	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// DefaultBits is the size of generated RSA keys.
const DefaultBits = 2048

const pemType = "RSA PRIVATE KEY"

// Signer signs pages on behalf of a publisher.
type Signer interface {
	// Sign returns the signature of data.
	Sign(data []byte) ([]byte, error)

	// PublicKey returns the PKIX encoding of the verifying key.
	PublicKey() []byte
}

// RSASigner signs with RSA PKCS#1 v1.5 over SHA-256.
//
// - implements keys.Signer
type RSASigner struct {
	key *rsa.PrivateKey
	pub []byte
}

// NewRSASigner wraps an existing private key.
func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	return &RSASigner{key: key, pub: pub}, nil
}

// GenerateRSA returns a signer with a fresh key.
func GenerateRSA(bits int) (*RSASigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate key: %v", err)
	}

	return NewRSASigner(key)
}

// LoadOrGenerate reads a PEM encoded key from path, or generates one and
// writes it there.
func LoadOrGenerate(path string) (*RSASigner, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		signer, err := GenerateRSA(DefaultBits)
		if err != nil {
			return nil, err
		}

		block := &pem.Block{Type: pemType, Bytes: x509.MarshalPKCS1PrivateKey(signer.key)}
		err = os.WriteFile(path, pem.EncodeToMemory(block), 0600)
		if err != nil {
			return nil, xerrors.Errorf("failed to save key: %v", err)
		}

		return signer, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read key: %v", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemType {
		return nil, xerrors.Errorf("no %s block in %s", pemType, path)
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse key: %v", err)
	}

	return NewRSASigner(key)
}

// Sign implements keys.Signer
func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	hashed := sha256.Sum256(data)

	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	return signature, nil
}

// PublicKey implements keys.Signer
func (s *RSASigner) PublicKey() []byte {
	return s.pub
}

// Verify checks signature over data against a PKIX encoded RSA public key.
func Verify(data, signature, publicKey []byte) bool {
	pub, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return false
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return false
	}

	hashed := sha256.Sum256(data)

	return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, hashed[:], signature) == nil
}

// SignPage builds a signed record of payload stamped with the current time.
func SignPage(s Signer, payload []byte) (types.Data, error) {
	page := types.NewPage(payload)

	signature, err := s.Sign(page.Bytes())
	if err != nil {
		return types.Data{}, err
	}

	return types.Data{
		Page:      page,
		Signature: signature,
		PublicKey: s.PublicKey(),
	}, nil
}

// VerifyData checks the publisher's signature of d.
func VerifyData(d types.Data) bool {
	return Verify(d.Page.Bytes(), d.Signature, d.PublicKey)
}
