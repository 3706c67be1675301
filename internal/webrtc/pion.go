package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

var errForeignTrack = errors.New("track was not created by this engine")

// PionEngine implements Engine on top of pion/webrtc.
type PionEngine struct {
	api *pion.API
	log zerolog.Logger
}

// NewPionEngine builds the pion API with default codecs and interceptors,
// routing pion logs through log.
func NewPionEngine(log zerolog.Logger) (*PionEngine, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	settings := pion.SettingEngine{LoggerFactory: logging.NewPionFactory(log)}

	return &PionEngine{
		api: pion.NewAPI(
			pion.WithMediaEngine(m),
			pion.WithInterceptorRegistry(registry),
			pion.WithSettingEngine(settings),
		),
		log: log.With().Str("component", "engine").Logger(),
	}, nil
}

// LocalTracks creates sample tracks for the requested kinds. Frames are
// pushed into them by the capture source through WriteSample.
func (e *PionEngine) LocalTracks(ctx context.Context, c Constraints) ([]Track, error) {
	if c.Empty() {
		return nil, errors.New("no audio or video requested")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "warpcall-" + uuid.NewString()[:8]
	var tracks []Track

	if c.Video != nil {
		t, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		tracks = append(tracks, newLocalTrack(t, KindVideo))
	}
	if c.Audio {
		t, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		tracks = append(tracks, newLocalTrack(t, KindAudio))
	}

	e.log.Debug().Str("stream", streamID).Int("tracks", len(tracks)).Msg("local tracks acquired")
	return tracks, nil
}

func (e *PionEngine) NewPeerConnection(cfg Configuration) (PeerConnection, error) {
	policy := pion.ICETransportPolicyAll
	if cfg.RelayOnly {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := e.api.NewPeerConnection(pion.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, err
	}
	return &peerConnection{pc: pc, log: e.log}, nil
}

// LocalTrack is a capture track backed by a pion static sample track.
type LocalTrack struct {
	sample  *pion.TrackLocalStaticSample
	kind    TrackKind
	enabled atomic.Bool
}

func newLocalTrack(sample *pion.TrackLocalStaticSample, kind TrackKind) *LocalTrack {
	t := &LocalTrack{sample: sample, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *LocalTrack) ID() string              { return t.sample.ID() }
func (t *LocalTrack) Kind() TrackKind         { return t.kind }
func (t *LocalTrack) Enabled() bool           { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// WriteSample forwards a captured frame. Frames written while the track is
// disabled are dropped, which is what muting means on the wire.
func (t *LocalTrack) WriteSample(s media.Sample) error {
	if !t.Enabled() {
		return nil
	}
	return t.sample.WriteSample(s)
}

type remoteTrack struct {
	track *pion.TrackRemote
}

func (t remoteTrack) ID() string       { return t.track.ID() }
func (t remoteTrack) StreamID() string { return t.track.StreamID() }
func (t remoteTrack) Kind() TrackKind  { return TrackKind(t.track.Kind().String()) }

type dataChannel struct {
	dc *pion.DataChannel
}

func (d dataChannel) Label() string          { return d.dc.Label() }
func (d dataChannel) Send(data []byte) error { return d.dc.Send(data) }
func (d dataChannel) OnOpen(f func())        { d.dc.OnOpen(f) }
func (d dataChannel) Close() error           { return d.dc.Close() }

func (d dataChannel) OnMessage(f func(data []byte)) {
	d.dc.OnMessage(func(msg pion.DataChannelMessage) { f(msg.Data) })
}

type peerConnection struct {
	pc  *pion.PeerConnection
	log zerolog.Logger
}

func (p *peerConnection) AddTrack(t Track) error {
	lt, ok := t.(*LocalTrack)
	if !ok {
		return errForeignTrack
	}
	sender, err := p.pc.AddTrack(lt.sample)
	if err != nil {
		return err
	}

	// RTCP has to be read for interceptors (NACK, reports) to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *peerConnection) CreateOffer() (SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *peerConnection) CreateAnswer() (SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *peerConnection) SetLocalDescription(d SessionDescription) error {
	return p.pc.SetLocalDescription(d)
}

func (p *peerConnection) SetRemoteDescription(d SessionDescription) error {
	return p.pc.SetRemoteDescription(d)
}

func (p *peerConnection) AddICECandidate(c ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *peerConnection) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return dataChannel{dc: dc}, nil
}

func (p *peerConnection) OnICECandidate(f func(c ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		// nil marks the end of gathering; nothing to relay
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

func (p *peerConnection) OnTrack(f func(t RemoteTrack)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.log.Debug().
			Str("track", track.ID()).
			Str("kind", track.Kind().String()).
			Str("codec", track.Codec().MimeType).
			Msg("remote track")

		// Rendering is done by the sink; keep the receiver draining so the
		// jitter buffers do not fill up.
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
		f(remoteTrack{track: track})
	})
}

func (p *peerConnection) OnConnectionStateChange(f func(s PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *peerConnection) OnDataChannel(f func(dc DataChannel)) {
	p.pc.OnDataChannel(func(dc *pion.DataChannel) { f(dataChannel{dc: dc}) })
}

func (p *peerConnection) Close() error {
	return p.pc.Close()
}
