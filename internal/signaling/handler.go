package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/rs/zerolog"
)

// EventType tags what a relay Event carries.
type EventType string

const (
	EventMemberJoined EventType = "member_joined"
	EventMemberLeft   EventType = "member_left"
	EventMessage      EventType = "message"
)

// Event is a presence change or a relayed peer message.
type Event struct {
	Type    EventType
	Member  call.MemberID
	Payload []byte
}

var ErrNotLoggedIn = errors.New("not logged in")

type reply struct {
	msg *Message
	err error
}

// Handler routes relay frames: replies go to the pending request, presence
// and peer messages become Events. It implements the room transport.
type Handler struct {
	client *Client
	events chan Event
	log    zerolog.Logger

	reqMu   sync.Mutex // one request in flight
	mu      sync.Mutex
	pending chan reply

	identity call.MemberID
	roomID   call.RoomID
}

// NewHandler wraps a connected client. Start must run before any request.
func NewHandler(client *Client, log zerolog.Logger) *Handler {
	return &Handler{
		client: client,
		events: make(chan Event, 64),
		log:    log.With().Str("component", "signaling").Logger(),
	}
}

// Start routes incoming frames until the connection closes.
func (h *Handler) Start() {
	defer close(h.events)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeLoginSuccess, MessageTypeLoggedOut, MessageTypeJoinSuccess, MessageTypeLeft:
			h.resolve(reply{msg: msg})

		case MessageTypeError:
			h.handleError(msg)

		case MessageTypeMemberJoined:
			h.events <- Event{Type: EventMemberJoined, Member: call.MemberID(msg.MemberID)}

		case MessageTypeMemberLeft:
			h.events <- Event{Type: EventMemberLeft, Member: call.MemberID(msg.MemberID)}

		case MessageTypePeerMessage:
			h.events <- Event{Type: EventMessage, Member: call.MemberID(msg.MemberID), Payload: []byte(msg.Text)}

		default:
			h.log.Debug().Str("type", msg.Type).Msg("ignoring unknown frame")
		}
	}

	h.resolve(reply{err: ErrClientClosed})
}

func (h *Handler) handleError(msg *Message) {
	var p ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		p.Error = "unknown error from relay"
	}

	// peer messages are fire-and-forget, nobody waits for their errors
	if p.Op == MessageTypePeerMessage {
		h.log.Warn().Str("error", p.Error).Msg("relay rejected peer message")
		return
	}
	h.resolve(reply{err: errors.New(p.Error)})
}

func (h *Handler) resolve(r reply) {
	h.mu.Lock()
	ch := h.pending
	h.pending = nil
	h.mu.Unlock()

	if ch == nil {
		if r.err != nil && !errors.Is(r.err, ErrClientClosed) {
			h.log.Warn().Err(r.err).Msg("unsolicited relay error")
		}
		return
	}
	ch <- r
}

// request sends msg and waits for the relay's reply.
func (h *Handler) request(ctx context.Context, msg *Message) (*Message, error) {
	h.reqMu.Lock()
	defer h.reqMu.Unlock()

	ch := make(chan reply, 1)
	h.mu.Lock()
	h.pending = ch
	h.mu.Unlock()

	if err := h.client.SendMessage(ctx, msg); err != nil {
		h.clearPending(ch)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		h.clearPending(ch)
		return nil, ctx.Err()
	}
}

func (h *Handler) clearPending(ch chan reply) {
	h.mu.Lock()
	if h.pending == ch {
		h.pending = nil
	}
	h.mu.Unlock()
}

// Login claims identity at the relay. An empty identity lets the relay
// assign one; the effective identity is returned.
func (h *Handler) Login(ctx context.Context, identity call.MemberID) (call.MemberID, error) {
	resp, err := h.request(ctx, &Message{Type: MessageTypeLogin, MemberID: identity.String()})
	if err != nil {
		return "", call.TransportError("login", err)
	}

	h.mu.Lock()
	h.identity = call.MemberID(resp.MemberID)
	h.mu.Unlock()
	return call.MemberID(resp.MemberID), nil
}

func (h *Handler) Logout(ctx context.Context) error {
	if _, err := h.request(ctx, &Message{Type: MessageTypeLogout}); err != nil {
		return call.TransportError("logout", err)
	}
	h.mu.Lock()
	h.identity = ""
	h.mu.Unlock()
	return nil
}

// Join enters room and returns the members that were already there.
func (h *Handler) Join(ctx context.Context, room call.RoomID) ([]call.MemberID, error) {
	h.mu.Lock()
	loggedIn := h.identity != ""
	h.mu.Unlock()
	if !loggedIn {
		return nil, call.TransportError("join", ErrNotLoggedIn)
	}

	resp, err := h.request(ctx, &Message{Type: MessageTypeJoinRoom, RoomID: room.String()})
	if err != nil {
		return nil, call.TransportError("join", err)
	}

	var p JoinPayload
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &p); err != nil {
			return nil, call.TransportError("join", fmt.Errorf("bad join payload: %w", err))
		}
	}

	h.mu.Lock()
	h.roomID = room
	h.mu.Unlock()

	members := make([]call.MemberID, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, call.MemberID(m))
	}
	return members, nil
}

// Leave exits the current room.
func (h *Handler) Leave(ctx context.Context) error {
	h.mu.Lock()
	joined := h.roomID != ""
	h.mu.Unlock()
	if !joined {
		return nil
	}

	if _, err := h.request(ctx, &Message{Type: MessageTypeLeaveRoom}); err != nil {
		return call.TransportError("leave", err)
	}
	h.mu.Lock()
	h.roomID = ""
	h.mu.Unlock()
	return nil
}

// SendToPeer relays payload to member. Delivery is not acknowledged.
func (h *Handler) SendToPeer(ctx context.Context, member call.MemberID, payload []byte) error {
	err := h.client.SendMessage(ctx, &Message{
		Type: MessageTypePeerMessage,
		To:   member.String(),
		Text: string(payload),
	})
	if err != nil {
		return call.TransportError("send to peer", err)
	}
	return nil
}

// Events is closed when the relay connection drops.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Close drops the relay connection; Events is closed once it is gone.
func (h *Handler) Close() {
	h.client.Close()
}
