package room

import (
	"context"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/webrtc"
)

// Transport is the room presence and unicast channel. signaling.Handler
// implements it over the websocket relay.
type Transport interface {
	Login(ctx context.Context, identity call.MemberID) (call.MemberID, error)
	Logout(ctx context.Context) error
	Join(ctx context.Context, room call.RoomID) ([]call.MemberID, error)
	Leave(ctx context.Context) error
	SendToPeer(ctx context.Context, member call.MemberID, payload []byte) error

	// Events is closed when the transport goes away.
	Events() <-chan signaling.Event
}

// Layout is how the view arranges the remote tiles.
type Layout int

const (
	// LayoutFull shows the local tile alone.
	LayoutFull Layout = iota
	// LayoutSplit shows the remote tile with the local one shrunk.
	LayoutSplit
)

func (l Layout) String() string {
	if l == LayoutSplit {
		return "split"
	}
	return "full"
}

// Sink renders media and call state. Methods are called from the
// coordinator loop and must not block.
type Sink interface {
	// ShowLocal is called with nil when no local media could be captured.
	ShowLocal(tracks []webrtc.Track)
	ShowRemote(member call.MemberID, stream *webrtc.RemoteStream)
	RemoteStreamChanged(member call.MemberID, stream *webrtc.RemoteStream)
	HideRemote(member call.MemberID)
	SetLayout(l Layout)
	SessionState(member call.MemberID, state negotiation.State)
	TrackToggled(kind webrtc.TrackKind, enabled bool)
	RemoteTrackState(member call.MemberID, kind webrtc.TrackKind, enabled bool)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) ShowLocal([]webrtc.Track)                                {}
func (NopSink) ShowRemote(call.MemberID, *webrtc.RemoteStream)          {}
func (NopSink) RemoteStreamChanged(call.MemberID, *webrtc.RemoteStream) {}
func (NopSink) HideRemote(call.MemberID)                                {}
func (NopSink) SetLayout(Layout)                                        {}
func (NopSink) SessionState(call.MemberID, negotiation.State)           {}
func (NopSink) TrackToggled(webrtc.TrackKind, bool)                     {}
func (NopSink) RemoteTrackState(call.MemberID, webrtc.TrackKind, bool)  {}
