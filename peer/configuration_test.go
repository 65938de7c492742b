package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kademlia/storage/inmemory"
	"go.dedis.ch/kademlia/transport/channel"
)

func validConfiguration(t *testing.T) Configuration {
	socket, err := channel.NewTransport().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	conf := DefaultConfiguration()
	conf.Socket = socket
	conf.Storage = inmemory.NewStorage()

	return conf
}

func Test_Configuration_Default(t *testing.T) {
	require.NoError(t, validConfiguration(t).Validate())
}

func Test_Configuration_MaintenanceIntervals(t *testing.T) {
	conf := validConfiguration(t)
	conf.KBucketLookupDelay = 0
	require.Error(t, conf.Validate())

	conf = validConfiguration(t)
	conf.UnpublishedTimeout = -1
	require.Error(t, conf.Validate())
}
