package ui

import (
	"fmt"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/rs/zerolog"
)

// LogSink renders call state as log lines, for headless runs.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink prints call events to Output and logs details to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "sink").Logger()}
}

func (s *LogSink) ShowLocal(tracks []webrtc.Track) {
	if tracks == nil {
		PrintWarning("No local media, joining receive-only")
		return
	}
	ev := s.log.Info().Int("tracks", len(tracks))
	for _, t := range tracks {
		ev = ev.Bool(string(t.Kind()), t.Enabled())
	}
	ev.Msg("local media ready")
}

func (s *LogSink) ShowRemote(member call.MemberID, stream *webrtc.RemoteStream) {
	PrintInfof("%s %s joined the call", IconPeer, member)
	if !stream.Has(webrtc.KindVideo) && !stream.Has(webrtc.KindAudio) {
		PrintWarning(fmt.Sprintf("%s sends no media", member))
	}
	s.log.Info().Str("member", member.String()).Int("tracks", stream.Len()).Msg("remote shown")
}

func (s *LogSink) RemoteStreamChanged(member call.MemberID, stream *webrtc.RemoteStream) {
	s.log.Debug().Str("member", member.String()).Int("tracks", stream.Len()).Msg("remote stream changed")
}

func (s *LogSink) HideRemote(member call.MemberID) {
	PrintInfof("%s %s left the call", IconPeer, member)
}

func (s *LogSink) SetLayout(l room.Layout) {
	s.log.Debug().Stringer("layout", l).Msg("layout")
}

func (s *LogSink) SessionState(member call.MemberID, state negotiation.State) {
	switch state {
	case negotiation.StateConnected:
		PrintSuccess(fmt.Sprintf("Connected to %s", member))
	case negotiation.StateClosed:
		PrintWarning(fmt.Sprintf("Session with %s closed", member))
	default:
		s.log.Debug().Str("member", member.String()).Stringer("state", state).Msg("session state")
	}
}

func (s *LogSink) TrackToggled(kind webrtc.TrackKind, enabled bool) {
	PrintInfof("Local %s %s", kind, onOffPlain(enabled))
}

func (s *LogSink) RemoteTrackState(member call.MemberID, kind webrtc.TrackKind, enabled bool) {
	PrintInfof("%s turned %s %s", member, kind, onOffPlain(enabled))
}

func onOffPlain(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
