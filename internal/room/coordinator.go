// Package room sequences room presence and peer signals into negotiation
// sessions, one per remote member. The Coordinator is an actor: Run drains
// a single inbox and is the only goroutine that touches sessions.
package room

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxEarlyCandidates = 64

	inboxSize = 256
)

var (
	ErrStopped         = errors.New("coordinator stopped")
	ErrTransportClosed = errors.New("transport closed")
)

// Config wires a Coordinator to its transport and media engine. Zero
// MaxEarlyCandidates means the default of 64 per member.
type Config struct {
	Transport   Transport
	Engine      webrtc.Engine
	Sink        Sink
	ICE         webrtc.Configuration
	Constraints webrtc.Constraints

	// DropEarlyCandidates discards candidates that arrive before their
	// session exists instead of buffering them.
	DropEarlyCandidates bool
	MaxEarlyCandidates  int

	Logger zerolog.Logger
}

// Coordinator owns every negotiation session of one room member. All
// state is touched only from the Run loop; other goroutines talk to it
// through the inbox.
type Coordinator struct {
	transport Transport
	engine    webrtc.Engine
	sink      Sink
	ice       webrtc.Configuration
	media     webrtc.Constraints

	dropEarly bool
	maxEarly  int

	local       call.MemberID
	localTracks []webrtc.Track

	sessions map[call.MemberID]*negotiation.Session
	early    map[call.MemberID][]webrtc.ICECandidateInit
	nextID   uint64

	inbox    chan Event
	done     chan struct{}
	stopOnce sync.Once
	final    []SessionInfo

	leaveMu sync.Mutex
	joined  bool

	log zerolog.Logger
}

// New returns a coordinator that does nothing until Enter and Run.
func New(cfg Config) *Coordinator {
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}
	maxEarly := cfg.MaxEarlyCandidates
	if maxEarly <= 0 {
		maxEarly = DefaultMaxEarlyCandidates
	}

	return &Coordinator{
		transport: cfg.Transport,
		engine:    cfg.Engine,
		sink:      sink,
		ice:       cfg.ICE,
		media:     cfg.Constraints,
		dropEarly: cfg.DropEarlyCandidates,
		maxEarly:  maxEarly,
		sessions:  make(map[call.MemberID]*negotiation.Session),
		early:     make(map[call.MemberID][]webrtc.ICECandidateInit),
		inbox:     make(chan Event, inboxSize),
		done:      make(chan struct{}),
		log:       cfg.Logger.With().Str("component", "room").Logger(),
	}
}

// Enter logs in as identity and joins room. It must be called before Run.
// The identity accepted by the relay is returned.
func (c *Coordinator) Enter(ctx context.Context, room call.RoomID, identity call.MemberID) (call.MemberID, error) {
	id, err := c.transport.Login(ctx, identity)
	if err != nil {
		return "", err
	}
	c.local = id

	members, err := c.transport.Join(ctx, room)
	if err != nil {
		if lerr := c.transport.Logout(ctx); lerr != nil {
			c.log.Debug().Err(lerr).Msg("logout after failed join")
		}
		return "", err
	}

	c.leaveMu.Lock()
	c.joined = true
	c.leaveMu.Unlock()

	c.log.Info().
		Str("room", room.String()).
		Str("identity", id.String()).
		Int("present", len(members)).
		Msg("joined room")
	return id, nil
}

// Leave leaves the room and logs out. Both steps are attempted; their
// errors are joined. Calls after the first are no-ops.
func (c *Coordinator) Leave(ctx context.Context) error {
	c.leaveMu.Lock()
	defer c.leaveMu.Unlock()
	if !c.joined {
		return nil
	}
	c.joined = false

	return errors.Join(c.transport.Leave(ctx), c.transport.Logout(ctx))
}

// Run acquires local media and processes events until ctx is done or the
// transport closes. Every session is closed on return.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.stop()

	c.acquireLocal(ctx)
	events := c.transport.Events()

	for {
		select {
		case <-ctx.Done():
			return nil

		case tev, ok := <-events:
			if !ok {
				return call.TransportError("run", ErrTransportClosed)
			}
			if ev, ok := fromTransport(tev); ok {
				c.step(ctx, ev)
			}

		case ev := <-c.inbox:
			c.step(ctx, ev)
		}
	}
}

func (c *Coordinator) stop() {
	c.stopOnce.Do(func() {
		c.final = c.snapshot()
		close(c.done)
		for member, s := range c.sessions {
			if err := s.Close(); err != nil {
				c.log.Debug().Err(err).Str("member", member.String()).Msg("close session")
			}
			delete(c.sessions, member)
		}
	})
}

// SetSink replaces the sink given to New. It must be called before Run.
func (c *Coordinator) SetSink(sink Sink) {
	if sink == nil {
		sink = NopSink{}
	}
	c.sink = sink
}

// Summary returns the sessions as they were when Run returned, or nil
// while Run is still going.
func (c *Coordinator) Summary() []SessionInfo {
	select {
	case <-c.done:
		return c.final
	default:
		return nil
	}
}

// Dispatch queues ev for the loop.
func (c *Coordinator) Dispatch(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.inbox <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is Dispatch for engine callbacks, which have no context.
func (c *Coordinator) post(ev Event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// ToggleCamera flips the local video track and tells every connected
// member. It returns the new enabled flag.
func (c *Coordinator) ToggleCamera(ctx context.Context) (bool, error) {
	return c.toggle(ctx, webrtc.KindVideo)
}

// ToggleMic is ToggleCamera for the audio track.
func (c *Coordinator) ToggleMic(ctx context.Context) (bool, error) {
	return c.toggle(ctx, webrtc.KindAudio)
}

// toggle flips the local track of kind and returns its new enabled state.
func (c *Coordinator) toggle(ctx context.Context, kind webrtc.TrackKind) (bool, error) {
	reply := make(chan toggleResult, 1)
	if err := c.Dispatch(ctx, toggleTrack{kind: kind, reply: reply}); err != nil {
		return false, err
	}
	select {
	case r := <-reply:
		return r.enabled, r.err
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Sessions returns a snapshot of every session, sorted by member.
func (c *Coordinator) Sessions(ctx context.Context) ([]SessionInfo, error) {
	reply := make(chan []SessionInfo, 1)
	if err := c.Dispatch(ctx, snapshot{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case infos := <-reply:
		return infos, nil
	case <-c.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// step handles one event and then executes the commands it produced.
func (c *Coordinator) step(ctx context.Context, ev Event) {
	for _, cmd := range c.handle(ctx, ev) {
		c.execute(ctx, cmd)
	}
}

func (c *Coordinator) handle(ctx context.Context, ev Event) []sendSignal {
	switch ev := ev.(type) {
	case MemberJoined:
		return c.onMemberJoined(ctx, ev.Member)
	case MemberLeft:
		c.onMemberLeft(ev.Member)
	case MessageReceived:
		return c.onMessage(ctx, ev.From, ev.Payload)
	case localCandidate:
		return c.onLocalCandidate(ev)
	case remoteTrack:
		c.onRemoteTrack(ev)
	case connectionState:
		c.onConnectionState(ev)
	case controlReceived:
		c.onControl(ev)
	case toggleTrack:
		enabled, err := c.onToggle(ev.kind)
		ev.reply <- toggleResult{enabled: enabled, err: err}
	case snapshot:
		ev.reply <- c.snapshot()
	}
	return nil
}

func (c *Coordinator) execute(ctx context.Context, cmd sendSignal) {
	payload, err := signaling.EncodeSignal(cmd.signal)
	if err != nil {
		c.log.Error().Err(err).Str("type", string(cmd.signal.Type)).Msg("encode signal")
		return
	}
	if err := c.transport.SendToPeer(ctx, cmd.to, payload); err != nil {
		c.log.Warn().Err(err).
			Str("member", cmd.to.String()).
			Str("type", string(cmd.signal.Type)).
			Msg("send signal failed")
		return
	}
	if cmd.sent != nil {
		cmd.sent()
	}
}

func (c *Coordinator) onMemberJoined(ctx context.Context, member call.MemberID) []sendSignal {
	log := c.log.With().Str("member", member.String()).Logger()

	if member == c.local {
		return nil
	}
	if _, ok := c.sessions[member]; ok {
		log.Debug().Msg("session exists, ignoring join")
		return nil
	}
	if other, busy := c.busyWith(member); busy {
		log.Warn().Str("peer", other.String()).Msg("already paired, ignoring join")
		return nil
	}

	s, err := c.newSession(ctx, member, call.RoleInitiator)
	if err != nil {
		log.Error().Err(err).Msg("create initiator session")
		return nil
	}

	offer, err := s.CreateOffer()
	if err != nil {
		log.Error().Err(err).Msg("create offer")
		return nil
	}

	log.Info().Msg("sending offer")
	return []sendSignal{{to: member, signal: signaling.OfferSignal(offer), sent: s.MarkSent}}
}

func (c *Coordinator) onMemberLeft(member call.MemberID) {
	delete(c.early, member)

	s, ok := c.sessions[member]
	if !ok {
		return
	}
	delete(c.sessions, member)
	if err := s.Close(); err != nil {
		c.log.Debug().Err(err).Str("member", member.String()).Msg("close session")
	}

	c.sink.HideRemote(member)
	c.sink.SetLayout(LayoutFull)
	c.log.Info().Str("member", member.String()).Msg("member left")
}

func (c *Coordinator) onMessage(ctx context.Context, from call.MemberID, payload []byte) []sendSignal {
	log := c.log.With().Str("member", from.String()).Logger()

	sig, err := signaling.DecodeSignal(payload)
	if err != nil {
		log.Warn().Err(call.ProtocolError("receive signal", from, err)).Msg("dropping signal")
		return nil
	}

	switch sig.Type {
	case signaling.SignalOffer:
		return c.onOffer(ctx, from, *sig.Offer)

	case signaling.SignalAnswer:
		s, ok := c.sessions[from]
		if !ok || s.Role() != call.RoleInitiator {
			log.Debug().Msg("no offer outstanding, ignoring answer")
			return nil
		}
		applied, err := s.ApplyAnswer(*sig.Answer)
		if err != nil {
			log.Error().Err(err).Msg("apply answer")
			return nil
		}
		if !applied {
			log.Debug().Msg("duplicate answer ignored")
			return nil
		}
		c.sink.SessionState(from, s.State())

	case signaling.SignalCandidate:
		s, ok := c.sessions[from]
		if !ok {
			c.bufferEarly(from, *sig.Candidate)
			return nil
		}
		if err := s.AddCandidate(*sig.Candidate); err != nil {
			log.Error().Err(err).Msg("add candidate")
		}
	}
	return nil
}

func (c *Coordinator) onOffer(ctx context.Context, from call.MemberID, offer webrtc.SessionDescription) []sendSignal {
	log := c.log.With().Str("member", from.String()).Logger()

	if s, ok := c.sessions[from]; ok {
		switch {
		case s.Closed():
			log.Debug().Msg("replacing closed session")
		case s.Role() == call.RoleResponder:
			log.Debug().Msg("duplicate offer ignored")
			return nil
		case !call.Polite(c.local, from):
			log.Debug().Msg("offer collision, keeping ours")
			return nil
		default:
			log.Debug().Msg("offer collision, yielding")
		}
		if err := s.Close(); err != nil {
			log.Debug().Err(err).Msg("close replaced session")
		}
		delete(c.sessions, from)
	} else if other, busy := c.busyWith(from); busy {
		log.Warn().Str("peer", other.String()).Msg("already paired, ignoring offer")
		return nil
	}

	s, err := c.newSession(ctx, from, call.RoleResponder)
	if err != nil {
		log.Error().Err(err).Msg("create responder session")
		return nil
	}

	answer, err := s.Answer(offer)
	if err != nil {
		log.Error().Err(err).Msg("answer offer")
		return nil
	}

	log.Info().Msg("sending answer")
	return []sendSignal{{to: from, signal: signaling.AnswerSignal(answer), sent: func() {
		s.MarkSent()
		c.sink.SessionState(from, s.State())
	}}}
}

// bufferEarly holds a candidate whose session does not exist yet.
func (c *Coordinator) bufferEarly(from call.MemberID, cand webrtc.ICECandidateInit) {
	log := c.log.With().Str("member", from.String()).Logger()

	if c.dropEarly {
		log.Debug().Msg("no session, dropping candidate")
		return
	}
	if len(c.early[from]) >= c.maxEarly {
		log.Warn().Int("max", c.maxEarly).Msg("early candidate buffer full, dropping candidate")
		return
	}
	c.early[from] = append(c.early[from], cand)
}

// busyWith reports another member this side already has a live session
// with.
func (c *Coordinator) busyWith(member call.MemberID) (call.MemberID, bool) {
	for m, s := range c.sessions {
		if m != member && !s.Closed() {
			return m, true
		}
	}
	return "", false
}

// newSession creates and registers a session, then hands it any candidates
// that arrived early.
func (c *Coordinator) newSession(ctx context.Context, member call.MemberID, role call.Role) (*negotiation.Session, error) {
	if len(c.localTracks) == 0 {
		c.fallbackCapture(ctx)
	}

	c.nextID++
	id := c.nextID

	s, err := negotiation.New(negotiation.Config{
		ID:     id,
		Remote: member,
		Role:   role,
		Engine: c.engine,
		ICE:    c.ice,
		Tracks: c.localTracks,
		Hooks: negotiation.Hooks{
			OnLocalCandidate: func(cand webrtc.ICECandidateInit) {
				c.post(localCandidate{member: member, session: id, candidate: cand})
			},
			OnRemoteTrack: func(t webrtc.RemoteTrack) {
				c.post(remoteTrack{member: member, session: id, track: t})
			},
			OnConnectionState: func(st webrtc.PeerConnectionState) {
				c.post(connectionState{member: member, session: id, state: st})
			},
			OnControl: func(m webrtc.ControlMessage) {
				c.post(controlReceived{member: member, session: id, msg: m})
			},
		},
		Logger: c.log,
	})
	if err != nil {
		return nil, err
	}
	c.sessions[member] = s

	if early := c.early[member]; len(early) > 0 {
		delete(c.early, member)
		for _, cand := range early {
			if err := s.AddCandidate(cand); err != nil {
				return nil, err
			}
		}
		c.log.Debug().Str("member", member.String()).Int("count", len(early)).Msg("flushed early candidates")
	}

	c.sink.ShowRemote(member, s.RemoteStream())
	c.sink.SetLayout(LayoutSplit)
	return s, nil
}

// current returns the session for member if it is still the one with id.
func (c *Coordinator) current(member call.MemberID, id uint64) (*negotiation.Session, bool) {
	s, ok := c.sessions[member]
	if !ok || s.ID() != id || s.Closed() {
		return nil, false
	}
	return s, true
}

func (c *Coordinator) onLocalCandidate(ev localCandidate) []sendSignal {
	s, ok := c.current(ev.member, ev.session)
	if !ok {
		return nil
	}
	return []sendSignal{{to: ev.member, signal: signaling.CandidateSignal(ev.candidate), sent: s.CandidateSent}}
}

func (c *Coordinator) onRemoteTrack(ev remoteTrack) {
	s, ok := c.current(ev.member, ev.session)
	if !ok {
		return
	}
	if s.AddRemoteTrack(ev.track) {
		c.log.Debug().
			Str("member", ev.member.String()).
			Str("kind", string(ev.track.Kind())).
			Msg("remote track added")
		c.sink.RemoteStreamChanged(ev.member, s.RemoteStream())
	}
}

func (c *Coordinator) onConnectionState(ev connectionState) {
	s, ok := c.current(ev.member, ev.session)
	if !ok {
		return
	}
	if !s.SetConnectionState(ev.state) {
		return
	}
	if s.Closed() {
		c.log.Warn().
			Err(call.NegotiationError("connect", ev.member, errors.New(ev.state.String()))).
			Msg("session closed")
	}
	c.sink.SessionState(ev.member, s.State())
}

func (c *Coordinator) onControl(ev controlReceived) {
	s, ok := c.current(ev.member, ev.session)
	if !ok {
		return
	}

	switch ev.msg.Type {
	case webrtc.MessageTypeTrackState:
		var p webrtc.TrackStatePayload
		if err := ev.msg.DecodePayload(&p); err != nil {
			c.log.Warn().Err(err).Str("member", ev.member.String()).Msg("bad track state")
			return
		}
		s.RemoteStream().SetEnabled(p.Kind, p.Enabled)
		c.sink.RemoteTrackState(ev.member, p.Kind, p.Enabled)
	default:
		c.log.Debug().Str("type", ev.msg.Type).Msg("unknown control message")
	}
}

func (c *Coordinator) onToggle(kind webrtc.TrackKind) (bool, error) {
	var track webrtc.Track
	for _, t := range c.localTracks {
		if t.Kind() == kind {
			track = t
			break
		}
	}
	if track == nil {
		err := call.NewError("toggle "+string(kind), call.ErrMediaAcquisition, call.ErrNoTrack)
		c.log.Warn().Err(err).Msg("toggle failed")
		return false, err
	}

	enabled := !track.Enabled()
	track.SetEnabled(enabled)
	c.sink.TrackToggled(kind, enabled)

	msg, err := webrtc.TrackState(kind, enabled)
	if err != nil {
		return enabled, err
	}
	for member, s := range c.sessions {
		if s.Closed() {
			continue
		}
		if err := s.SendControl(msg); err != nil {
			c.log.Debug().Err(err).Str("member", member.String()).Msg("track state not sent")
		}
	}
	return enabled, nil
}

func (c *Coordinator) snapshot() []SessionInfo {
	infos := make([]SessionInfo, 0, len(c.sessions))
	for _, s := range c.sessions {
		infos = append(infos, SessionInfo{
			Member:       s.Remote(),
			Role:         s.Role(),
			State:        s.State(),
			Candidates:   s.Stats(),
			RemoteTracks: s.RemoteStream().Len(),
			Duration:     s.Duration(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Member < infos[j].Member })
	return infos
}

// acquireLocal captures local media with the configured constraints. On
// failure the preview stays empty and negotiation goes ahead without it.
func (c *Coordinator) acquireLocal(ctx context.Context) {
	tracks, err := c.engine.LocalTracks(ctx, c.media)
	if err != nil {
		c.log.Warn().Err(call.MediaError("acquire local media", err)).Msg("no local preview")
		c.sink.ShowLocal(nil)
		c.sink.SetLayout(LayoutFull)
		return
	}
	c.localTracks = tracks
	c.sink.ShowLocal(tracks)
	c.sink.SetLayout(LayoutFull)
}

// fallbackCapture retries capture with video only.
func (c *Coordinator) fallbackCapture(ctx context.Context) {
	tracks, err := c.engine.LocalTracks(ctx, webrtc.VideoOnly())
	if err != nil {
		c.log.Warn().Err(call.MediaError("acquire fallback video", err)).Msg("negotiating without local media")
		return
	}
	c.localTracks = tracks
	c.sink.ShowLocal(tracks)
}
