package peer

import (
	"time"

	"go.dedis.ch/kademlia/keys"
	"go.dedis.ch/kademlia/storage"
	"go.dedis.ch/kademlia/transport"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// Configuration is the set of parameters of a node. Use
// DefaultConfiguration and override what is needed.
type Configuration struct {
	Socket  transport.Socket
	Storage storage.Storage

	// Signer signs published pages. PublishData fails without it.
	Signer keys.Signer

	// ID is the node ID. A random one is used when nil.
	ID types.NodeID

	// BootstrapAddr is the seed joined by Start. Empty means the node is
	// the first of its network.
	BootstrapAddr string

	// IDLength is the width of IDs and keys in bytes.
	IDLength int
	// NonceLength is the width of request nonces in bytes.
	NonceLength int

	// K is the bucket capacity and the replication factor.
	K int
	// Alpha is the number of concurrent requests of a lookup.
	Alpha int
	// CacheSize is the size of the replacement cache of each bucket.
	CacheSize int

	BootstrapTries   int
	BootstrapTimeout time.Duration

	// PollTimeout is how long a lookup waits for replies per round.
	PollTimeout time.Duration
	// RequestTimeout is the age at which an unanswered lookup request is
	// pruned from the working set.
	RequestTimeout time.Duration
	// PollInterval is the receive timeout of the dispatch loop.
	PollInterval time.Duration

	UnansweredTimeout    time.Duration
	PingTimeout          time.Duration
	KBucketLookupTimeout time.Duration
	KBucketLookupDelay   time.Duration
	RepublishTimeout     time.Duration
	UnpublishedTimeout   time.Duration

	// RepublishWorkers bounds the number of keys republished at once.
	RepublishWorkers int

	// AckStores makes the node answer STORE with a STORE_ACK.
	AckStores bool

	// RefreshEnabled turns the k-bucket refresh on.
	RefreshEnabled bool

	// TraceFile, when set, is the prefix of a GoVector log of every RPC.
	TraceFile string
}

// DefaultConfiguration returns the production parameters.
func DefaultConfiguration() Configuration {
	return Configuration{
		IDLength:    types.DefaultIDLength,
		NonceLength: types.DefaultNonceLength,

		K:         20,
		Alpha:     3,
		CacheSize: 3,

		BootstrapTries:   5,
		BootstrapTimeout: 60 * time.Second,

		PollTimeout:    time.Second,
		RequestTimeout: 2 * time.Second,
		PollInterval:   10 * time.Millisecond,

		UnansweredTimeout:    2 * time.Second,
		PingTimeout:          4 * time.Second,
		KBucketLookupTimeout: time.Hour,
		KBucketLookupDelay:   10 * time.Minute,
		RepublishTimeout:     time.Hour,
		UnpublishedTimeout:   5 * time.Minute,

		RepublishWorkers: 8,

		AckStores:      true,
		RefreshEnabled: true,
	}
}

// Validate checks that the configuration can run a node.
func (c Configuration) Validate() error {
	switch {
	case c.Socket == nil:
		return xerrors.New("no socket")
	case c.Storage == nil:
		return xerrors.New("no storage")
	case c.IDLength <= 0 || c.NonceLength <= 0:
		return xerrors.Errorf("invalid widths %d/%d", c.IDLength, c.NonceLength)
	case c.ID != nil && len(c.ID) != c.IDLength:
		return xerrors.Errorf("id of %d bytes, expected %d", len(c.ID), c.IDLength)
	case c.K <= 0 || c.Alpha <= 0 || c.CacheSize <= 0:
		return xerrors.Errorf("invalid K=%d Alpha=%d CacheSize=%d", c.K, c.Alpha, c.CacheSize)
	case c.BootstrapTries <= 0:
		return xerrors.Errorf("invalid bootstrap tries %d", c.BootstrapTries)
	case c.PollTimeout <= 0 || c.RequestTimeout <= 0 || c.PollInterval <= 0:
		return xerrors.New("lookup timeouts must be positive")
	case c.UnansweredTimeout <= 0 || c.PingTimeout <= 0 || c.KBucketLookupTimeout <= 0 ||
		c.KBucketLookupDelay <= 0 || c.RepublishTimeout <= 0 || c.UnpublishedTimeout <= 0:
		return xerrors.New("maintenance intervals must be positive")
	case c.RepublishWorkers <= 0:
		return xerrors.Errorf("invalid republish workers %d", c.RepublishWorkers)
	}

	return nil
}
