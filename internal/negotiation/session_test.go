package negotiation

import (
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/BioHazard786/warpcall/internal/webrtc/webrtctest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func newSession(t *testing.T, eng *webrtctest.Engine, role call.Role, hooks Hooks) (*Session, *webrtctest.PeerConnection) {
	t.Helper()

	tracks := []webrtc.Track{
		webrtctest.NewTrack("video", webrtc.KindVideo),
		webrtctest.NewTrack("audio", webrtc.KindAudio),
	}
	s, err := New(Config{
		ID:     1,
		Remote: "bob",
		Role:   role,
		Engine: eng,
		Tracks: tracks,
		Hooks:  hooks,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, eng.Last()
}

func TestNewAttachesTracks(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	assert.Len(t, pc.Tracks, 2)
	assert.Equal(t, StateNew, s.State())
	require.Len(t, pc.Channels, 1)
	assert.Equal(t, webrtc.ControlChannelLabel, pc.Channels[0].Label())
}

func TestNewFailsWithoutPeerConnection(t *testing.T) {
	eng := webrtctest.NewEngine()
	eng.FailPeerConnection = true

	_, err := New(Config{Remote: "bob", Role: call.RoleInitiator, Engine: eng, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.ErrorIs(t, err, call.ErrNegotiation)
	assert.ErrorIs(t, err, webrtctest.ErrInjected)
}

func TestInitiatorHandshake(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	offer, err := s.CreateOffer()
	require.NoError(t, err)
	assert.True(t, webrtc.IsOffer(offer))
	assert.Equal(t, StateLocalDescriptionSet, s.State())
	assert.Equal(t, &offer, pc.LocalDescription())

	s.MarkSent()
	assert.Equal(t, StateRemoteDescriptionPending, s.State())

	applied, err := s.ApplyAnswer(webrtc.NewAnswer("A"))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StateStable, s.State())

	assert.True(t, s.SetConnectionState(webrtc.StateConnected))
	assert.Equal(t, StateConnected, s.State())
	assert.False(t, s.SetConnectionState(webrtc.StateConnected))
}

func TestCreateOfferTwiceFails(t *testing.T) {
	s, _ := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	_, err := s.CreateOffer()
	require.NoError(t, err)
	_, err = s.CreateOffer()
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestCreateOfferFailureCloses(t *testing.T) {
	eng := webrtctest.NewEngine()
	s, pc := newSession(t, eng, call.RoleInitiator, Hooks{})
	pc.FailCreateOffer = true

	_, err := s.CreateOffer()
	require.Error(t, err)
	assert.ErrorIs(t, err, call.ErrNegotiation)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, pc.Closed())
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})
	_, err := s.CreateOffer()
	require.NoError(t, err)
	s.MarkSent()

	applied, err := s.ApplyAnswer(webrtc.NewAnswer("A"))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.ApplyAnswer(webrtc.NewAnswer("B"))
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, "A", pc.RemoteDescription().SDP)
	assert.Equal(t, 1, pc.RemoteSets)
}

func TestResponderHandshake(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleResponder, Hooks{})
	assert.Empty(t, pc.Channels)

	answer, err := s.Answer(webrtc.NewOffer("O"))
	require.NoError(t, err)
	assert.True(t, webrtc.IsAnswer(answer))
	assert.Equal(t, "O", pc.RemoteDescription().SDP)
	assert.Equal(t, StateLocalDescriptionSet, s.State())

	s.MarkSent()
	assert.Equal(t, StateStable, s.State())

	_, err = s.ApplyAnswer(webrtc.NewAnswer("A"))
	assert.ErrorIs(t, err, ErrWrongRole)
}

func TestResponderSetRemoteFailure(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleResponder, Hooks{})
	pc.FailSetRemote = true

	_, err := s.Answer(webrtc.NewOffer("O"))
	require.Error(t, err)
	assert.ErrorIs(t, err, call.ErrNegotiation)
	assert.True(t, s.Closed())
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})
	_, err := s.CreateOffer()
	require.NoError(t, err)
	s.MarkSent()

	require.NoError(t, s.AddCandidate(candidate("c1")))
	require.NoError(t, s.AddCandidate(candidate("c2")))
	assert.Empty(t, pc.AppliedCandidates())
	assert.Equal(t, Stats{Queued: 2}, s.Stats())

	_, err = s.ApplyAnswer(webrtc.NewAnswer("A"))
	require.NoError(t, err)
	assert.Equal(t, []webrtc.ICECandidateInit{candidate("c1"), candidate("c2")}, pc.AppliedCandidates())

	require.NoError(t, s.AddCandidate(candidate("c3")))
	assert.Len(t, pc.AppliedCandidates(), 3)
	assert.Equal(t, Stats{Applied: 3}, s.Stats())
}

func TestResponderFlushesQueuedCandidates(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleResponder, Hooks{})

	require.NoError(t, s.AddCandidate(candidate("early")))
	_, err := s.Answer(webrtc.NewOffer("O"))
	require.NoError(t, err)
	assert.Equal(t, []webrtc.ICECandidateInit{candidate("early")}, pc.AppliedCandidates())
}

func TestCandidateFailureCloses(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleResponder, Hooks{})
	_, err := s.Answer(webrtc.NewOffer("O"))
	require.NoError(t, err)

	pc.FailAddICECandidate = true
	err = s.AddCandidate(candidate("bad"))
	require.Error(t, err)
	assert.ErrorIs(t, err, call.ErrNegotiation)
	assert.True(t, s.Closed())

	// closed sessions drop candidates silently
	assert.NoError(t, s.AddCandidate(candidate("late")))
}

func TestHooksForwardEngineEvents(t *testing.T) {
	var (
		candidates []webrtc.ICECandidateInit
		tracks     []webrtc.RemoteTrack
		states     []webrtc.PeerConnectionState
	)
	hooks := Hooks{
		OnLocalCandidate:  func(c webrtc.ICECandidateInit) { candidates = append(candidates, c) },
		OnRemoteTrack:     func(tr webrtc.RemoteTrack) { tracks = append(tracks, tr) },
		OnConnectionState: func(st webrtc.PeerConnectionState) { states = append(states, st) },
	}
	_, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, hooks)

	pc.EmitCandidate(candidate("local"))
	pc.EmitTrack(webrtctest.RemoteTrack{TrackID: "v", Stream: "s", Type: webrtc.KindVideo})
	pc.EmitState(webrtc.StateConnecting)

	assert.Equal(t, []webrtc.ICECandidateInit{candidate("local")}, candidates)
	assert.Len(t, tracks, 1)
	assert.Equal(t, []webrtc.PeerConnectionState{webrtc.StateConnecting}, states)
}

func TestRemoteTracksAccumulate(t *testing.T) {
	s, _ := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	video := webrtctest.RemoteTrack{TrackID: "v", Stream: "s", Type: webrtc.KindVideo}
	audio := webrtctest.RemoteTrack{TrackID: "a", Stream: "s", Type: webrtc.KindAudio}

	assert.True(t, s.AddRemoteTrack(video))
	assert.True(t, s.AddRemoteTrack(audio))
	assert.False(t, s.AddRemoteTrack(video))
	assert.Equal(t, 2, s.RemoteStream().Len())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.RemoteStream().Len())
	assert.False(t, s.AddRemoteTrack(video))
}

func TestFailedConnectionCloses(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	assert.False(t, s.SetConnectionState(webrtc.StateDisconnected))
	assert.True(t, s.SetConnectionState(webrtc.StateFailed))
	assert.True(t, s.Closed())
	assert.True(t, pc.Closed())
}

func TestDuration(t *testing.T) {
	s, _ := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})
	assert.Zero(t, s.Duration())

	s.SetConnectionState(webrtc.StateConnected)
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Close())

	d := s.Duration()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, d, s.Duration(), "frozen once closed")
}

func TestCloseIdempotent(t *testing.T) {
	s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, pc.CloseCalls)
	assert.Equal(t, StateClosed, s.State())

	applied, err := s.ApplyAnswer(webrtc.NewAnswer("A"))
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestControlChannel(t *testing.T) {
	var got []webrtc.ControlMessage
	hooks := Hooks{OnControl: func(m webrtc.ControlMessage) { got = append(got, m) }}

	t.Run("initiator sends on its own channel", func(t *testing.T) {
		s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, hooks)

		msg, err := webrtc.TrackState(webrtc.KindAudio, false)
		require.NoError(t, err)
		require.NoError(t, s.SendControl(msg))

		sent := pc.Channels[0].SentMessages()
		require.Len(t, sent, 1)
		decoded, err := webrtc.DecodeControl(sent[0])
		require.NoError(t, err)
		assert.Equal(t, webrtc.MessageTypeTrackState, decoded.Type)
	})

	t.Run("open announces every local track", func(t *testing.T) {
		s, pc := newSession(t, webrtctest.NewEngine(), call.RoleInitiator, Hooks{})
		s.Tracks()[1].SetEnabled(false)

		dc := pc.Channels[0]
		assert.Empty(t, dc.SentMessages())
		dc.Open()

		sent := dc.SentMessages()
		require.Len(t, sent, 2)
		var states []webrtc.TrackStatePayload
		for _, data := range sent {
			msg, err := webrtc.DecodeControl(data)
			require.NoError(t, err)
			assert.Equal(t, webrtc.MessageTypeTrackState, msg.Type)
			var p webrtc.TrackStatePayload
			require.NoError(t, msg.DecodePayload(&p))
			states = append(states, p)
		}
		assert.Equal(t, []webrtc.TrackStatePayload{
			{Kind: webrtc.KindVideo, Enabled: true},
			{Kind: webrtc.KindAudio, Enabled: false},
		}, states)
		assert.Equal(t, call.MemberID("bob"), s.Remote())
	})

	t.Run("responder adopts remote channel", func(t *testing.T) {
		got = nil
		s, pc := newSession(t, webrtctest.NewEngine(), call.RoleResponder, hooks)

		msg, err := webrtc.TrackState(webrtc.KindVideo, false)
		require.NoError(t, err)
		assert.ErrorIs(t, s.SendControl(msg), ErrNoChannel)

		pc.EmitDataChannel(webrtctest.NewDataChannel("other"))
		assert.ErrorIs(t, s.SendControl(msg), ErrNoChannel)

		dc := webrtctest.NewDataChannel(webrtc.ControlChannelLabel)
		pc.EmitDataChannel(dc)
		require.NoError(t, s.SendControl(msg))

		data, err := webrtc.EncodeControl(msg)
		require.NoError(t, err)
		dc.Deliver(data)
		dc.Deliver([]byte{0xc1})

		require.Len(t, got, 1)
		var p webrtc.TrackStatePayload
		require.NoError(t, got[0].DecodePayload(&p))
		assert.Equal(t, webrtc.TrackStatePayload{Kind: webrtc.KindVideo, Enabled: false}, p)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "remote-description-pending", StateRemoteDescriptionPending.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateClosed.Terminal())
	assert.False(t, StateConnected.Terminal())
}
