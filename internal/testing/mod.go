package testing

import (
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kademlia/keys"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/storage"
	"go.dedis.ch/kademlia/storage/inmemory"
	"go.dedis.ch/kademlia/transport"
	"go.dedis.ch/kademlia/types"
)

// TestNode is a peer together with its socket.
type TestNode struct {
	peer.Peer
	socket transport.ClosableSocket
	config peer.Configuration
}

// Stop stops the peer and closes its socket.
func (t TestNode) Stop() error {
	err := t.Peer.Stop()
	t.socket.Close()
	return err
}

// GetIns returns the datagrams received by the node.
func (t TestNode) GetIns() []transport.Packet {
	return t.socket.GetIns()
}

// GetOuts returns the datagrams sent by the node.
func (t TestNode) GetOuts() []transport.Packet {
	return t.socket.GetOuts()
}

// GetConfig returns the configuration the node was created with.
func (t TestNode) GetConfig() peer.Configuration {
	return t.config
}

// GetStorage returns the node's storage.
func (t TestNode) GetStorage() storage.Storage {
	return t.config.Storage
}

type configTemplate struct {
	conf      peer.Configuration
	autoStart bool
}

// newConfigTemplate returns the production configuration with lookup
// timeouts fit for tests.
func newConfigTemplate() configTemplate {
	conf := peer.DefaultConfiguration()

	conf.PollTimeout = 100 * time.Millisecond
	conf.RequestTimeout = 300 * time.Millisecond
	conf.BootstrapTimeout = 500 * time.Millisecond
	conf.PollInterval = 5 * time.Millisecond
	conf.RefreshEnabled = false

	return configTemplate{
		conf:      conf,
		autoStart: true,
	}
}

// Option is the type of option when creating a test node.
type Option func(*configTemplate)

// WithAutostart sets whether NewTestNode starts the node.
func WithAutostart(autostart bool) Option {
	return func(ct *configTemplate) {
		ct.autoStart = autostart
	}
}

// WithID sets the node ID.
func WithID(id types.NodeID) Option {
	return func(ct *configTemplate) {
		ct.conf.ID = id
	}
}

// WithIDLength sets the width of IDs and keys.
func WithIDLength(length int) Option {
	return func(ct *configTemplate) {
		ct.conf.IDLength = length
	}
}

// WithK sets the bucket capacity and replication factor.
func WithK(k int) Option {
	return func(ct *configTemplate) {
		ct.conf.K = k
	}
}

// WithAlpha sets the lookup concurrency.
func WithAlpha(alpha int) Option {
	return func(ct *configTemplate) {
		ct.conf.Alpha = alpha
	}
}

// WithCacheSize sets the replacement cache size.
func WithCacheSize(size int) Option {
	return func(ct *configTemplate) {
		ct.conf.CacheSize = size
	}
}

// WithBootstrap sets the seed joined by Start.
func WithBootstrap(addr string) Option {
	return func(ct *configTemplate) {
		ct.conf.BootstrapAddr = addr
	}
}

// WithBootstrapTries sets the number of bootstrap attempts.
func WithBootstrapTries(tries int) Option {
	return func(ct *configTemplate) {
		ct.conf.BootstrapTries = tries
	}
}

// WithBootstrapTimeout sets how long each bootstrap attempt waits.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.BootstrapTimeout = d
	}
}

// WithPollTimeout sets the lookup round duration.
func WithPollTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.PollTimeout = d
	}
}

// WithRequestTimeout sets the age at which lookup requests are pruned.
func WithRequestTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.RequestTimeout = d
	}
}

// WithUnansweredTimeout sets the cookie expiry.
func WithUnansweredTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.UnansweredTimeout = d
	}
}

// WithPingTimeout sets the liveness ping interval.
func WithPingTimeout(d time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.PingTimeout = d
	}
}

// WithRefresh turns the k-bucket refresh on, with the given interval.
func WithRefresh(interval time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.RefreshEnabled = true
		ct.conf.KBucketLookupTimeout = interval
	}
}

// WithRepublish sets the republish and unpublished retry intervals.
func WithRepublish(timeout, unpublished time.Duration) Option {
	return func(ct *configTemplate) {
		ct.conf.RepublishTimeout = timeout
		ct.conf.UnpublishedTimeout = unpublished
	}
}

// WithAckStores sets whether STORE is acknowledged.
func WithAckStores(ack bool) Option {
	return func(ct *configTemplate) {
		ct.conf.AckStores = ack
	}
}

// WithSigner sets the signer used by PublishData.
func WithSigner(signer keys.Signer) Option {
	return func(ct *configTemplate) {
		ct.conf.Signer = signer
	}
}

// WithStorage sets the storage.
func WithStorage(s storage.Storage) Option {
	return func(ct *configTemplate) {
		ct.conf.Storage = s
	}
}

// NewTestNode returns a new test node.
func NewTestNode(t require.TestingT, f peer.Factory, trans transport.Transport,
	addr string, opts ...Option) TestNode {

	template := newConfigTemplate()
	for _, opt := range opts {
		opt(&template)
	}

	socket, err := trans.CreateSocket(addr)
	require.NoError(t, err)

	config := template.conf
	config.Socket = socket
	if config.Storage == nil {
		config.Storage = inmemory.NewStorage()
	}

	node, err := f(config)
	require.NoError(t, err)

	if template.autoStart {
		require.NoError(t, node.Start())
	}

	return TestNode{
		Peer:   node,
		socket: socket,
		config: config,
	}
}
