package room

import (
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/webrtc"
)

// Event is the closed set of inputs to the coordinator loop.
type Event interface {
	isEvent()
}

// MemberJoined is raised when the relay announces a new room member.
type MemberJoined struct {
	Member call.MemberID
}

// MemberLeft is raised when a member leaves or drops off the relay.
type MemberLeft struct {
	Member call.MemberID
}

// MessageReceived carries an undecoded signal from a member.
type MessageReceived struct {
	From    call.MemberID
	Payload []byte
}

// Engine events, tagged with the session that raised them so that late
// callbacks from a replaced session are ignored.
type (
	localCandidate struct {
		member    call.MemberID
		session   uint64
		candidate webrtc.ICECandidateInit
	}
	remoteTrack struct {
		member  call.MemberID
		session uint64
		track   webrtc.RemoteTrack
	}
	connectionState struct {
		member  call.MemberID
		session uint64
		state   webrtc.PeerConnectionState
	}
	controlReceived struct {
		member  call.MemberID
		session uint64
		msg     webrtc.ControlMessage
	}
)

// Commands that need an answer from the loop.
type (
	toggleResult struct {
		enabled bool
		err     error
	}
	toggleTrack struct {
		kind  webrtc.TrackKind
		reply chan toggleResult
	}
	snapshot struct {
		reply chan []SessionInfo
	}
)

func (MemberJoined) isEvent()    {}
func (MemberLeft) isEvent()      {}
func (MessageReceived) isEvent() {}
func (localCandidate) isEvent()  {}
func (remoteTrack) isEvent()     {}
func (connectionState) isEvent() {}
func (controlReceived) isEvent() {}
func (toggleTrack) isEvent()     {}
func (snapshot) isEvent()        {}

// fromTransport maps a transport event into the coordinator's vocabulary.
func fromTransport(ev signaling.Event) (Event, bool) {
	switch ev.Type {
	case signaling.EventMemberJoined:
		return MemberJoined{Member: ev.Member}, true
	case signaling.EventMemberLeft:
		return MemberLeft{Member: ev.Member}, true
	case signaling.EventMessage:
		return MessageReceived{From: ev.Member, Payload: ev.Payload}, true
	}
	return nil, false
}

// sendSignal is the one outbound command. sent runs after a successful
// send.
type sendSignal struct {
	to     call.MemberID
	signal signaling.Signal
	sent   func()
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	Member       call.MemberID
	Role         call.Role
	State        negotiation.State
	Candidates   negotiation.Stats
	RemoteTracks int
	Duration     time.Duration
}
