package errs

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrRoomClosed       = errors.New("room has been closed")
	ErrChannelClosed    = errors.New("channel closed")
	ErrNotConnected     = errors.New("channel not connected")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrMediaUnavailable = errors.New("media unavailable")
	ErrNegotiation      = errors.New("negotiation failed")
	ErrUnexpectedSignal = errors.New("unexpected signal type")
	ErrSelfPeer         = errors.New("peer id refers to self")
	ErrNotFound         = errors.New("not found")
	ErrInvalidFile      = errors.New("invalid file")
	ErrExists           = errors.New("already exists")
)

// Error annotates a failure with the operation and, when known, the peer it
// concerns.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
