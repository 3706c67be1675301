package call

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the coordinator wraps exactly one.
var (
	ErrTransport         = errors.New("transport error")
	ErrMediaAcquisition  = errors.New("media acquisition error")
	ErrNegotiation       = errors.New("negotiation error")
	ErrProtocolViolation = errors.New("protocol violation")
)

// More specific causes.
var (
	ErrNoSession      = errors.New("no session for member")
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownSignal  = errors.New("unknown signal type")
	ErrMissingPayload = errors.New("signal payload missing")
	ErrNoTrack        = errors.New("no local track of that kind")
	ErrRoomFull       = errors.New("room is full")
	ErrNotJoined      = errors.New("not joined to a room")
)

// Error is a failed operation, tagged with a kind sentinel so callers can
// match it with errors.Is.
type Error struct {
	Op     string
	Member MemberID
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Member != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Member, e.Kind, e.Err)
	case e.Member != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Member, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func NewMemberError(op string, member MemberID, kind, err error) *Error {
	return &Error{Op: op, Member: member, Kind: kind, Err: err}
}

// TransportError tags err as ErrTransport.
func TransportError(op string, err error) *Error {
	return NewError(op, ErrTransport, err)
}

func NegotiationError(op string, member MemberID, err error) *Error {
	return NewMemberError(op, member, ErrNegotiation, err)
}

func ProtocolError(op string, member MemberID, err error) *Error {
	return NewMemberError(op, member, ErrProtocolViolation, err)
}

func MediaError(op string, err error) *Error {
	return NewError(op, ErrMediaAcquisition, err)
}
