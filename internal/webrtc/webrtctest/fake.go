// Package webrtctest provides an in-memory webrtc.Engine whose peer
// connections record every call and let tests fire engine callbacks.
package webrtctest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/warpcall/internal/webrtc"
)

var ErrInjected = errors.New("injected failure")

type Track struct {
	mu      sync.Mutex
	id      string
	kind    webrtc.TrackKind
	enabled bool
}

func NewTrack(id string, kind webrtc.TrackKind) *Track {
	return &Track{id: id, kind: kind, enabled: true}
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() webrtc.TrackKind { return t.kind }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

type RemoteTrack struct {
	TrackID string
	Stream  string
	Type    webrtc.TrackKind
}

func (t RemoteTrack) ID() string             { return t.TrackID }
func (t RemoteTrack) StreamID() string       { return t.Stream }
func (t RemoteTrack) Kind() webrtc.TrackKind { return t.Type }

// Engine hands out fake peer connections. Set the Fail* fields to make the
// corresponding call return ErrInjected.
type Engine struct {
	mu sync.Mutex

	FailTracks         bool
	FailVideoOnly      bool
	FailPeerConnection bool

	Requested []webrtc.Constraints
	Conns     []*PeerConnection
	counter   int
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) LocalTracks(_ context.Context, c webrtc.Constraints) ([]webrtc.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Requested = append(e.Requested, c)

	videoOnly := c.Video != nil && !c.Audio
	if e.FailTracks && (!videoOnly || e.FailVideoOnly) {
		return nil, ErrInjected
	}

	var tracks []webrtc.Track
	if c.Video != nil {
		tracks = append(tracks, NewTrack(fmt.Sprintf("video-%d", len(e.Requested)), webrtc.KindVideo))
	}
	if c.Audio {
		tracks = append(tracks, NewTrack(fmt.Sprintf("audio-%d", len(e.Requested)), webrtc.KindAudio))
	}
	return tracks, nil
}

func (e *Engine) NewPeerConnection(cfg webrtc.Configuration) (webrtc.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailPeerConnection {
		return nil, ErrInjected
	}
	e.counter++
	pc := &PeerConnection{id: e.counter, Config: cfg}
	e.Conns = append(e.Conns, pc)
	return pc, nil
}

// Last returns the most recently created peer connection.
func (e *Engine) Last() *PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Conns) == 0 {
		return nil
	}
	return e.Conns[len(e.Conns)-1]
}

func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Conns)
}

type PeerConnection struct {
	mu sync.Mutex
	id int

	Config webrtc.Configuration

	FailCreateOffer     bool
	FailSetRemote       bool
	FailAddICECandidate bool
	FailClose           bool

	Tracks        []webrtc.Track
	Local         *webrtc.SessionDescription
	Remote        *webrtc.SessionDescription
	RemoteSets    int
	Candidates    []webrtc.ICECandidateInit
	Channels      []*DataChannel
	CloseCalls    int
	onCandidate   func(webrtc.ICECandidateInit)
	onTrack       func(webrtc.RemoteTrack)
	onState       func(webrtc.PeerConnectionState)
	onDataChannel func(webrtc.DataChannel)
}

func (p *PeerConnection) AddTrack(t webrtc.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tracks = append(p.Tracks, t)
	return nil
}

func (p *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailCreateOffer {
		return webrtc.SessionDescription{}, ErrInjected
	}
	return webrtc.NewOffer(fmt.Sprintf("v=0 offer pc-%d", p.id)), nil
}

func (p *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Remote == nil {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.NewAnswer(fmt.Sprintf("v=0 answer pc-%d", p.id)), nil
}

func (p *PeerConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Local = &d
	return nil
}

func (p *PeerConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSetRemote {
		return ErrInjected
	}
	p.Remote = &d
	p.RemoteSets++
	return nil
}

func (p *PeerConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailAddICECandidate {
		return ErrInjected
	}
	if p.Remote == nil {
		return errors.New("remote description not set")
	}
	p.Candidates = append(p.Candidates, c)
	return nil
}

func (p *PeerConnection) CreateDataChannel(label string) (webrtc.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dc := &DataChannel{label: label}
	p.Channels = append(p.Channels, dc)
	return dc, nil
}

func (p *PeerConnection) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *PeerConnection) OnTrack(f func(webrtc.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = f
	p.mu.Unlock()
}

func (p *PeerConnection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = f
	p.mu.Unlock()
}

func (p *PeerConnection) OnDataChannel(f func(webrtc.DataChannel)) {
	p.mu.Lock()
	p.onDataChannel = f
	p.mu.Unlock()
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	if p.FailClose {
		return ErrInjected
	}
	return nil
}

func (p *PeerConnection) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CloseCalls > 0
}

func (p *PeerConnection) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Remote
}

func (p *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Local
}

func (p *PeerConnection) AppliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.Candidates...)
}

// EmitCandidate fires the local-candidate handler as ICE gathering would.
func (p *PeerConnection) EmitCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	if f != nil {
		f(c)
	}
}

func (p *PeerConnection) EmitTrack(t webrtc.RemoteTrack) {
	p.mu.Lock()
	f := p.onTrack
	p.mu.Unlock()
	if f != nil {
		f(t)
	}
}

func (p *PeerConnection) EmitState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	if f != nil {
		f(s)
	}
}

// EmitDataChannel announces a channel opened by the remote side.
func (p *PeerConnection) EmitDataChannel(dc *DataChannel) {
	p.mu.Lock()
	f := p.onDataChannel
	p.mu.Unlock()
	if f != nil {
		f(dc)
	}
}

type DataChannel struct {
	mu        sync.Mutex
	label     string
	Sent      [][]byte
	onOpen    func()
	onMessage func([]byte)
	closed    bool
}

func NewDataChannel(label string) *DataChannel { return &DataChannel{label: label} }

func (d *DataChannel) Label() string { return d.label }

func (d *DataChannel) Send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("data channel closed")
	}
	d.Sent = append(d.Sent, data)
	return nil
}

func (d *DataChannel) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *DataChannel) OnMessage(f func([]byte)) {
	d.mu.Lock()
	d.onMessage = f
	d.mu.Unlock()
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Deliver fires the message handler with data from the remote side.
// Open fires the OnOpen handler as if the channel just became usable.
func (d *DataChannel) Open() {
	d.mu.Lock()
	f := d.onOpen
	d.mu.Unlock()
	if f != nil {
		f()
	}
}

func (d *DataChannel) Deliver(data []byte) {
	d.mu.Lock()
	f := d.onMessage
	d.mu.Unlock()
	if f != nil {
		f(data)
	}
}

func (d *DataChannel) SentMessages() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.Sent...)
}
