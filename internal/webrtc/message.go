package webrtc

import "github.com/vmihailenco/msgpack/v5"

// ControlChannelLabel is the data channel the initiator opens for control
// messages between the two members.
const ControlChannelLabel = "control"

const MessageTypeTrackState = "track_state"

// ControlMessage is a msgpack frame sent over the control channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// TrackStatePayload announces that a local track was muted or unmuted.
type TrackStatePayload struct {
	Kind    TrackKind `msgpack:"kind"`
	Enabled bool      `msgpack:"enabled"`
}

// DecodePayload decodes the message payload into the provided struct
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewControlMessage creates a new ControlMessage with the given type and payload
func NewControlMessage(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

// EncodeControl packs m with msgpack for the control channel.
func EncodeControl(m ControlMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

func DecodeControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := msgpack.Unmarshal(data, &m)
	return m, err
}

// TrackState builds a track_state message.
func TrackState(kind TrackKind, enabled bool) (ControlMessage, error) {
	return NewControlMessage(MessageTypeTrackState, TrackStatePayload{Kind: kind, Enabled: enabled})
}
