package webrtc

import "sync"

// RemoteStream accumulates the tracks received from one member into a single
// handle for the sink. It is written by the coordinator loop and read by the
// UI, hence the lock.
type RemoteStream struct {
	mu       sync.RWMutex
	tracks   []RemoteTrack
	disabled map[TrackKind]bool
}

// NewRemoteStream returns an empty stream.
func NewRemoteStream() *RemoteStream {
	return &RemoteStream{disabled: make(map[TrackKind]bool)}
}

// Add appends t unless a track with the same id is already present.
func (s *RemoteStream) Add(t RemoteTrack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.tracks {
		if have.ID() == t.ID() {
			return false
		}
	}
	s.tracks = append(s.tracks, t)
	return true
}

func (s *RemoteStream) Tracks() []RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *RemoteStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Has reports whether a track of kind has arrived.
func (s *RemoteStream) Has(kind TrackKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

// SetEnabled records the sender's enabled flag for kind, as reported over
// the control channel.
func (s *RemoteStream) SetEnabled(kind TrackKind, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[kind] = !enabled
}

func (s *RemoteStream) Enabled(kind TrackKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[kind]
}

// Clear detaches every track.
func (s *RemoteStream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = nil
	s.disabled = make(map[TrackKind]bool)
}
