package peer

import "golang.org/x/xerrors"

var (
	// ErrUnknownPeerReply is a reply whose nonce is unknown or whose sender
	// is not the peer the request went to.
	ErrUnknownPeerReply = xerrors.New("reply from unknown peer")

	// ErrEmptyRoutingTable is a lookup started without any known node.
	ErrEmptyRoutingTable = xerrors.New("empty routing table")

	// ErrRequestTimeout is a request that was not answered in time.
	ErrRequestTimeout = xerrors.New("request timed out")

	// ErrBootstrapFailed is returned once every bootstrap attempt failed.
	ErrBootstrapFailed = xerrors.New("bootstrap failed")

	// ErrStopped is returned by calls interrupted by Stop.
	ErrStopped = xerrors.New("node stopped")

	// ErrNoSigner is returned by PublishData without a configured signer.
	ErrNoSigner = xerrors.New("no signer configured")

	// ErrStaleValue is a local store refused because a newer page of the
	// same publisher is held.
	ErrStaleValue = xerrors.New("newer value already stored")

	// ErrInvalidKey is a key or target whose width is not the configured ID
	// length.
	ErrInvalidKey = xerrors.New("invalid key length")

	// ErrInvalidSignature is a page whose signature does not verify.
	ErrInvalidSignature = xerrors.New("invalid signature")
)
