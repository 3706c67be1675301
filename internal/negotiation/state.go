package negotiation

// State is where a session is in the offer/answer handshake.
type State int

const (
	StateNew State = iota
	StateLocalDescriptionSet
	StateRemoteDescriptionPending
	// StateStable means both descriptions are applied and ICE is running.
	StateStable
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLocalDescriptionSet:
		return "local-description-set"
	case StateRemoteDescriptionPending:
		return "remote-description-pending"
	case StateStable:
		return "stable"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed
}
