package impl

import (
	"context"

	"go.dedis.ch/kademlia/keys"
	"go.dedis.ch/kademlia/peer"
	"go.dedis.ch/kademlia/types"
	"golang.org/x/xerrors"
)

// PublishData implements peer.Publisher. The page is stored under the hash
// of the signer's public key, a newer page of the same publisher replaces
// the previous one on every custodian.
func (n *node) PublishData(ctx context.Context, payload []byte) (types.NodeID, error) {
	if n.conf.Signer == nil {
		return nil, peer.ErrNoSigner
	}

	data, err := keys.SignPage(n.conf.Signer, payload)
	if err != nil {
		return nil, err
	}

	value, err := data.Encode()
	if err != nil {
		return nil, err
	}

	key := data.Author(n.conf.IDLength)

	found, err := n.Store(ctx, key, value)
	if err != nil {
		return nil, err
	}

	if !found {
		n.log.Info().Msgf("<[peer.Peer.PublishData] page %s only stored locally>", key.Short())
	}

	return key, nil
}

// GetData implements peer.Publisher
func (n *node) GetData(ctx context.Context, key types.NodeID) (types.Data, bool, error) {
	value, found, err := n.GetValue(ctx, key)
	if err != nil || !found {
		return types.Data{}, false, err
	}

	data, err := types.DecodeData(value)
	if err != nil {
		return types.Data{}, false, err
	}

	// the record address must be the hash of the record's public key
	if !data.Author(len(key)).Equal(key) {
		return types.Data{}, false, xerrors.Errorf("page under %s: %w", key.Short(), types.ErrDifferentAuthors)
	}

	if !keys.VerifyData(data) {
		return types.Data{}, false, peer.ErrInvalidSignature
	}

	return data, true, nil
}
