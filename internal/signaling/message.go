package signaling

import "encoding/json"

// Message represents all WebSocket frames between a member and the relay.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`

	// MemberID is the identity on login, the subject of member_joined and
	// member_left, and the sender of a relayed peer_message.
	MemberID string `json:"member_id,omitempty"`

	// To addresses a peer_message; Text carries its opaque body.
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
}

// Client to relay.
const (
	MessageTypeLogin       = "login"
	MessageTypeLogout      = "logout"
	MessageTypeJoinRoom    = "join_room"
	MessageTypeLeaveRoom   = "leave_room"
	MessageTypePeerMessage = "peer_message"
)

// Relay to client.
const (
	MessageTypeLoginSuccess = "login_success"
	MessageTypeLoggedOut    = "logged_out"
	MessageTypeJoinSuccess  = "join_success"
	MessageTypeLeft         = "left"
	MessageTypeMemberJoined = "member_joined"
	MessageTypeMemberLeft   = "member_left"
	MessageTypeError        = "error"
)

// JoinPayload lists the members already in the room, the joiner excluded.
type JoinPayload struct {
	Members []string `json:"members"`
}

// ErrorPayload represents error messages from the relay. Op names the
// request type that failed.
type ErrorPayload struct {
	Error string `json:"error"`
	Op    string `json:"op,omitempty"`
}

func NewErrorMessage(op, text string) *Message {
	b, _ := json.Marshal(ErrorPayload{Error: text, Op: op})
	return &Message{Type: MessageTypeError, Payload: b}
}
