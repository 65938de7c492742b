package types

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrMalformedMessage is matched by every decode failure.
	ErrMalformedMessage = xerrors.New("malformed message")

	// ErrOversizedMessage is returned when an encoded message does not fit in
	// a single datagram.
	ErrOversizedMessage = xerrors.New("oversized message")

	// ErrPayloadMismatch is returned when a payload is attached to a message
	// type that does not carry it.
	ErrPayloadMismatch = xerrors.New("payload does not match message type")

	// ErrDifferentAuthors is returned when comparing pages of two publishers.
	ErrDifferentAuthors = xerrors.New("authors differ")
)

// MalformedMessageError describes why a buffer could not be decoded.
type MalformedMessageError struct {
	Type   MessageType
	Reason string
}

// Error implements error.
func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed %s message: %s", e.Type, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedMessage) hold.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func malformed(t MessageType, format string, args ...interface{}) error {
	return &MalformedMessageError{Type: t, Reason: fmt.Sprintf(format, args...)}
}
