// Package webrtc is the media engine seen by the negotiation core: local
// capture, peer connections and data channels. The pion adapter lives in
// pion.go; webrtctest provides an in-memory engine for tests.
package webrtc

import (
	"context"

	pion "github.com/pion/webrtc/v4"
)

// Opaque negotiation payloads. They are pion's types so the JSON shape
// matches what browsers put on the wire.
type (
	SessionDescription  = pion.SessionDescription
	ICECandidateInit    = pion.ICECandidateInit
	ICEServer           = pion.ICEServer
	PeerConnectionState = pion.PeerConnectionState
)

// TrackKind is the media kind of a track, "video" or "audio".
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is a locally captured track.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
}

// RemoteTrack is a track received from the paired member.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() TrackKind
}

// DataChannel is an ordered message channel on a peer connection.
type DataChannel interface {
	Label() string
	Send(data []byte) error
	OnOpen(f func())
	OnMessage(f func(data []byte))
	Close() error
}

// Configuration is what a new peer connection is created with.
type Configuration struct {
	ICEServers []ICEServer
	RelayOnly  bool
}

// Engine captures local media and creates peer connections. PionEngine
// is the real one; webrtctest has a scripted fake.
type Engine interface {
	// LocalTracks acquires capture tracks matching constraints.
	LocalTracks(ctx context.Context, c Constraints) ([]Track, error)
	NewPeerConnection(cfg Configuration) (PeerConnection, error)
}

// PeerConnection is the subset of an RTCPeerConnection the core drives.
// Handlers are invoked from engine goroutines.
type PeerConnection interface {
	AddTrack(t Track) error
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(d SessionDescription) error
	SetRemoteDescription(d SessionDescription) error
	AddICECandidate(c ICECandidateInit) error
	CreateDataChannel(label string) (DataChannel, error)

	OnICECandidate(f func(c ICECandidateInit))
	OnTrack(f func(t RemoteTrack))
	OnConnectionStateChange(f func(s PeerConnectionState))
	OnDataChannel(f func(dc DataChannel))

	Close() error
}

// Connection states re-exported for callers that do not import pion.
const (
	StateNew          = pion.PeerConnectionStateNew
	StateConnecting   = pion.PeerConnectionStateConnecting
	StateConnected    = pion.PeerConnectionStateConnected
	StateDisconnected = pion.PeerConnectionStateDisconnected
	StateFailed       = pion.PeerConnectionStateFailed
	StateClosed       = pion.PeerConnectionStateClosed
)

// NewOffer wraps sdp as an offer description.
func NewOffer(sdp string) SessionDescription {
	return SessionDescription{Type: pion.SDPTypeOffer, SDP: sdp}
}

func NewAnswer(sdp string) SessionDescription {
	return SessionDescription{Type: pion.SDPTypeAnswer, SDP: sdp}
}

func IsOffer(d SessionDescription) bool  { return d.Type == pion.SDPTypeOffer }
func IsAnswer(d SessionDescription) bool { return d.Type == pion.SDPTypeAnswer }
