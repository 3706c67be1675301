package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/BioHazard786/warpcall/internal/webrtc/webrtctest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSessionSummaryView(t *testing.T) {
	view := SessionSummaryView([]room.SessionInfo{{
		Member:       "42",
		Role:         call.RoleInitiator,
		State:        negotiation.StateConnected,
		Candidates:   negotiation.Stats{Sent: 3, Applied: 2, Queued: 1},
		RemoteTracks: 2,
		Duration:     95 * time.Second,
	}})

	assert.Contains(t, view, "Session Summary")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "initiator")
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "1m 35s")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
}

func TestSessionSummaryViewEmpty(t *testing.T) {
	assert.Contains(t, SessionSummaryView(nil), "no peer joined")
}

func TestLogSinkPrints(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	t.Cleanup(func() { Output = old })

	var logs bytes.Buffer
	s := NewLogSink(zerolog.New(&logs))

	s.ShowLocal(nil)
	s.ShowLocal([]webrtc.Track{webrtctest.NewTrack("v", webrtc.KindVideo)})
	s.ShowRemote("42", webrtc.NewRemoteStream())
	s.SessionState("42", negotiation.StateConnected)
	s.TrackToggled(webrtc.KindAudio, false)
	s.RemoteTrackState("42", webrtc.KindVideo, true)
	s.HideRemote("42")

	out := buf.String()
	assert.Contains(t, out, "receive-only")
	assert.Contains(t, out, "42 joined the call")
	assert.Contains(t, out, "42 sends no media")
	assert.Contains(t, out, "Connected to 42")
	assert.Contains(t, out, "Local audio off")
	assert.Contains(t, out, "42 turned video on")
	assert.Contains(t, out, "42 left the call")

	assert.Contains(t, logs.String(), "local media ready")
}
