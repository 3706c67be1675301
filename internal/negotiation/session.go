// Package negotiation drives one offer/answer handshake with one remote
// member. A Session is not safe for concurrent use: the room coordinator
// calls it from its event loop only. Engine callbacks are forwarded through
// Hooks and never touch session state directly.
package negotiation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/rs/zerolog"
)

var (
	ErrWrongRole  = errors.New("operation not valid for session role")
	ErrWrongState = errors.New("operation not valid in current state")
	ErrNoChannel  = errors.New("control channel not open")
)

// Hooks receive engine events. They run on engine goroutines.
type Hooks struct {
	OnLocalCandidate  func(c webrtc.ICECandidateInit)
	OnRemoteTrack     func(t webrtc.RemoteTrack)
	OnConnectionState func(s webrtc.PeerConnectionState)
	OnControl         func(m webrtc.ControlMessage)
}

// Config describes one session. Tracks are attached in order when the
// peer connection is created.
type Config struct {
	// ID tells sessions for the same member apart across replacements.
	ID     uint64
	Remote call.MemberID
	Role   call.Role

	Engine webrtc.Engine
	ICE    webrtc.Configuration
	Tracks []webrtc.Track
	Hooks  Hooks
	Logger zerolog.Logger
}

// Stats counts candidates moved by a session.
type Stats struct {
	Sent    int
	Applied int
	Queued  int
}

// Session is the negotiation with a single remote member over one peer
// connection. It is not safe for concurrent use; the room loop drives it.
type Session struct {
	id     uint64
	remote call.MemberID
	role   call.Role
	state  State

	pc     webrtc.PeerConnection
	tracks []webrtc.Track
	stream *webrtc.RemoteStream

	local     *webrtc.SessionDescription
	remoteSDP *webrtc.SessionDescription

	pending []webrtc.ICECandidateInit
	sent    int
	applied int

	connectedAt time.Time
	endedAt     time.Time

	controlMu sync.Mutex
	control   webrtc.DataChannel

	hooks Hooks
	log   zerolog.Logger
}

// New creates the peer connection, attaches every local track and, for the
// initiator, opens the control channel so it is part of the offer.
func New(cfg Config) (*Session, error) {
	s := &Session{
		id:     cfg.ID,
		remote: cfg.Remote,
		role:   cfg.Role,
		stream: webrtc.NewRemoteStream(),
		hooks:  cfg.Hooks,
		log: cfg.Logger.With().
			Str("member", cfg.Remote.String()).
			Str("role", cfg.Role.String()).
			Logger(),
	}

	pc, err := cfg.Engine.NewPeerConnection(cfg.ICE)
	if err != nil {
		s.state = StateClosed
		return nil, call.NegotiationError("create peer connection", cfg.Remote, err)
	}
	s.pc = pc

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if s.hooks.OnLocalCandidate != nil {
			s.hooks.OnLocalCandidate(c)
		}
	})
	pc.OnTrack(func(t webrtc.RemoteTrack) {
		if s.hooks.OnRemoteTrack != nil {
			s.hooks.OnRemoteTrack(t)
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if s.hooks.OnConnectionState != nil {
			s.hooks.OnConnectionState(st)
		}
	})

	for _, t := range cfg.Tracks {
		if err := pc.AddTrack(t); err != nil {
			s.Close()
			return nil, call.NegotiationError("add track", cfg.Remote, err)
		}
		s.tracks = append(s.tracks, t)
	}

	switch cfg.Role {
	case call.RoleInitiator:
		dc, err := pc.CreateDataChannel(webrtc.ControlChannelLabel)
		if err != nil {
			s.Close()
			return nil, call.NegotiationError("create control channel", cfg.Remote, err)
		}
		s.adopt(dc)
	case call.RoleResponder:
		pc.OnDataChannel(func(dc webrtc.DataChannel) {
			if dc.Label() != webrtc.ControlChannelLabel {
				s.log.Debug().Str("label", dc.Label()).Msg("ignoring data channel")
				return
			}
			s.adopt(dc)
		})
	}

	s.log.Debug().Int("tracks", len(s.tracks)).Msg("session created")
	return s, nil
}

func (s *Session) adopt(dc webrtc.DataChannel) {
	dc.OnMessage(func(data []byte) {
		msg, err := webrtc.DecodeControl(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("bad control message")
			return
		}
		if s.hooks.OnControl != nil {
			s.hooks.OnControl(msg)
		}
	})
	dc.OnOpen(func() { s.announceTracks(dc) })

	s.controlMu.Lock()
	s.control = dc
	s.controlMu.Unlock()
}

// announceTracks tells the remote member the enabled flag of every local
// track, so a track muted before the channel opened shows up muted.
func (s *Session) announceTracks(dc webrtc.DataChannel) {
	for _, t := range s.tracks {
		msg, err := webrtc.TrackState(t.Kind(), t.Enabled())
		if err != nil {
			s.log.Warn().Err(err).Msg("encode track state")
			continue
		}
		data, err := webrtc.EncodeControl(msg)
		if err != nil {
			s.log.Warn().Err(err).Msg("encode track state")
			continue
		}
		if err := dc.Send(data); err != nil {
			s.log.Debug().Err(err).Str("kind", string(t.Kind())).Msg("announce track state")
		}
	}
}

// CreateOffer creates and applies the local offer. Initiator only.
func (s *Session) CreateOffer() (webrtc.SessionDescription, error) {
	if s.role != call.RoleInitiator {
		return webrtc.SessionDescription{}, call.NegotiationError("create offer", s.remote, ErrWrongRole)
	}
	if s.state != StateNew {
		return webrtc.SessionDescription{}, call.NegotiationError("create offer", s.remote,
			fmt.Errorf("%w: %s", ErrWrongState, s.state))
	}

	offer, err := s.pc.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, s.fail("create offer", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, s.fail("set local description", err)
	}

	s.local = &offer
	s.state = StateLocalDescriptionSet
	return offer, nil
}

// Answer applies the remote offer and creates the local answer. Responder
// only.
func (s *Session) Answer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if s.role != call.RoleResponder {
		return webrtc.SessionDescription{}, call.NegotiationError("answer", s.remote, ErrWrongRole)
	}
	if s.state != StateNew {
		return webrtc.SessionDescription{}, call.NegotiationError("answer", s.remote,
			fmt.Errorf("%w: %s", ErrWrongState, s.state))
	}

	if err := s.setRemote(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, s.fail("create answer", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, s.fail("set local description", err)
	}

	s.local = &answer
	s.state = StateLocalDescriptionSet
	return answer, nil
}

// MarkSent records that the local description went out. The initiator then
// waits for an answer; the responder has nothing left to exchange.
func (s *Session) MarkSent() {
	if s.state != StateLocalDescriptionSet {
		return
	}
	if s.role == call.RoleInitiator {
		s.state = StateRemoteDescriptionPending
		return
	}
	s.state = StateStable
}

// ApplyAnswer sets the remote answer once. Later answers, and answers to a
// closed session, are ignored and reported as not applied.
func (s *Session) ApplyAnswer(answer webrtc.SessionDescription) (bool, error) {
	if s.role != call.RoleInitiator {
		return false, call.NegotiationError("apply answer", s.remote, ErrWrongRole)
	}
	if s.state == StateClosed || s.remoteSDP != nil {
		return false, nil
	}
	if s.local == nil {
		return false, call.NegotiationError("apply answer", s.remote,
			fmt.Errorf("%w: %s", ErrWrongState, s.state))
	}

	if err := s.setRemote(answer); err != nil {
		return false, err
	}
	if s.state != StateConnected {
		s.state = StateStable
	}
	return true, nil
}

// setRemote applies d and flushes the candidates that arrived before it.
func (s *Session) setRemote(d webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(d); err != nil {
		return s.fail("set remote description", err)
	}
	s.remoteSDP = &d

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.apply(c); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.log.Debug().Int("count", len(pending)).Msg("flushed queued candidates")
	}
	return nil
}

// AddCandidate applies a remote candidate, or queues it until the remote
// description is set. Candidates for a closed session are dropped.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) error {
	if s.state == StateClosed {
		return nil
	}
	if s.remoteSDP == nil {
		s.pending = append(s.pending, c)
		return nil
	}
	return s.apply(c)
}

func (s *Session) apply(c webrtc.ICECandidateInit) error {
	if err := s.pc.AddICECandidate(c); err != nil {
		return s.fail("add ice candidate", err)
	}
	s.applied++
	return nil
}

// CandidateSent counts a local candidate handed to the transport.
func (s *Session) CandidateSent() {
	s.sent++
}

// AddRemoteTrack adds t to the remote stream; false if it was already there.
func (s *Session) AddRemoteTrack(t webrtc.RemoteTrack) bool {
	if s.state == StateClosed {
		return false
	}
	return s.stream.Add(t)
}

// SetConnectionState folds a peer connection state into the session state.
// It returns true when the session state changed.
func (s *Session) SetConnectionState(st webrtc.PeerConnectionState) bool {
	if s.state == StateClosed {
		return false
	}

	switch st {
	case webrtc.StateConnected:
		if s.state == StateConnected {
			return false
		}
		s.state = StateConnected
		s.connectedAt = time.Now()
		s.log.Info().Msg("peer connected")
		return true
	case webrtc.StateFailed:
		s.log.Warn().Msg("peer connection failed")
		s.Close()
		return true
	case webrtc.StateClosed:
		s.Close()
		return true
	}
	return false
}

// SendControl sends m over the control channel.
func (s *Session) SendControl(m webrtc.ControlMessage) error {
	s.controlMu.Lock()
	dc := s.control
	s.controlMu.Unlock()

	if dc == nil || s.state.Terminal() {
		return ErrNoChannel
	}
	data, err := webrtc.EncodeControl(m)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// Close releases the peer connection and clears the remote stream. It is
// safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed && s.pc == nil {
		return nil
	}
	s.state = StateClosed
	s.pending = nil
	s.stream.Clear()
	if !s.connectedAt.IsZero() && s.endedAt.IsZero() {
		s.endedAt = time.Now()
	}

	s.controlMu.Lock()
	dc := s.control
	s.control = nil
	s.controlMu.Unlock()

	var errs []error
	if dc != nil {
		errs = append(errs, dc.Close())
	}
	if s.pc != nil {
		errs = append(errs, s.pc.Close())
		s.pc = nil
	}
	s.log.Debug().Msg("session closed")
	return errors.Join(errs...)
}

// fail closes the session and wraps err as a negotiation error.
func (s *Session) fail(op string, err error) error {
	s.Close()
	return call.NegotiationError(op, s.remote, err)
}

func (s *Session) ID() uint64                         { return s.id }
func (s *Session) Remote() call.MemberID              { return s.remote }
func (s *Session) Role() call.Role                    { return s.role }
func (s *Session) State() State                       { return s.state }
func (s *Session) Closed() bool                       { return s.state.Terminal() }
func (s *Session) RemoteStream() *webrtc.RemoteStream { return s.stream }
func (s *Session) Tracks() []webrtc.Track             { return s.tracks }

func (s *Session) LocalDescription() *webrtc.SessionDescription  { return s.local }
func (s *Session) RemoteDescription() *webrtc.SessionDescription { return s.remoteSDP }

// Stats reports candidate counters for the summary table.
func (s *Session) Stats() Stats {
	return Stats{Sent: s.sent, Applied: s.applied, Queued: len(s.pending)}
}

// Duration is how long media has flowed: from the first connected state
// until close, or until now while still open. Zero if never connected.
func (s *Session) Duration() time.Duration {
	if s.connectedAt.IsZero() {
		return 0
	}
	if s.endedAt.IsZero() {
		return time.Since(s.connectedAt)
	}
	return s.endedAt.Sub(s.connectedAt)
}
