// Package relay is the signaling server: it keeps two-member rooms, tells
// members about each other and relays peer messages between them.
package relay

import (
	"encoding/json"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultMaxMembers = 2

type inbound struct {
	client *Client
	msg    *signaling.Message
}

// Hub owns every room and identity. All of its state is touched only from
// the Run goroutine.
type Hub struct {
	rooms      map[call.RoomID]*Room
	identities map[call.MemberID]*Client
	maxMembers int

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	quit       chan struct{}

	metrics *Metrics
	log     zerolog.Logger
}

// NewHub returns a hub with no members. Call Run before serving.
func NewHub(metrics *Metrics, log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[call.RoomID]*Room),
		identities: make(map[call.MemberID]*Client),
		maxMembers: DefaultMaxMembers,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		quit:       make(chan struct{}),
		metrics:    metrics,
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Run processes registrations and frames until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for _, c := range h.identities {
				c.conn.Close()
			}
			return

		case c := <-h.register:
			c.log.Debug().Msg("client registered")

		case c := <-h.unregister:
			h.leaveRoom(c)
			h.forget(c)
			close(c.send)
			c.log.Debug().Msg("client unregistered")

		case in := <-h.inbound:
			h.handle(in.client, in.msg)
		}
	}
}

// Stop ends Run and disconnects every member.
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeLogin:
		h.login(c, msg)

	case signaling.MessageTypeLogout:
		h.leaveRoom(c)
		h.forget(c)
		h.send(c, &signaling.Message{Type: signaling.MessageTypeLoggedOut})

	case signaling.MessageTypeJoinRoom:
		h.join(c, msg)

	case signaling.MessageTypeLeaveRoom:
		h.leaveRoom(c)
		h.send(c, &signaling.Message{Type: signaling.MessageTypeLeft})

	case signaling.MessageTypePeerMessage:
		h.relay(c, msg)

	default:
		c.log.Debug().Str("type", msg.Type).Msg("unknown message type")
		h.reject(c, msg.Type, "Unknown message type")
	}
}

func (h *Hub) login(c *Client, msg *signaling.Message) {
	if c.identity != "" {
		h.reject(c, msg.Type, "Already logged in")
		return
	}

	id := call.MemberID(msg.MemberID)
	if id == "" {
		id = call.MemberID(uuid.NewString())
	}
	if _, taken := h.identities[id]; taken {
		h.reject(c, msg.Type, "Identity in use")
		return
	}

	c.identity = id
	c.log = c.log.With().Str("member", id.String()).Logger()
	h.identities[id] = c
	h.send(c, &signaling.Message{Type: signaling.MessageTypeLoginSuccess, MemberID: id.String()})
}

func (h *Hub) join(c *Client, msg *signaling.Message) {
	roomID := call.RoomID(msg.RoomID)

	switch {
	case c.identity == "":
		h.reject(c, msg.Type, "You must log in first")
		return
	case roomID == "":
		h.reject(c, msg.Type, "Room ID required")
		return
	case c.roomID != "":
		h.reject(c, msg.Type, "Already in a room")
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		h.metrics.Rooms.Inc()
		c.log.Info().Str("room", roomID.String()).Msg("room created")
	}

	if len(room.Members) >= h.maxMembers {
		c.log.Info().Str("room", roomID.String()).Msg("room join failed: room is full")
		h.reject(c, msg.Type, "Room is full")
		return
	}

	existing := room.others(c.identity)
	room.Members[c.identity] = c
	c.roomID = roomID
	h.metrics.Members.Inc()

	for _, m := range existing {
		h.send(room.Members[call.MemberID(m)], &signaling.Message{
			Type:     signaling.MessageTypeMemberJoined,
			RoomID:   roomID.String(),
			MemberID: c.identity.String(),
		})
	}

	payload, _ := json.Marshal(signaling.JoinPayload{Members: existing})
	h.send(c, &signaling.Message{
		Type:    signaling.MessageTypeJoinSuccess,
		RoomID:  roomID.String(),
		Payload: payload,
	})
	c.log.Info().Str("room", roomID.String()).Int("members", len(room.Members)).Msg("joined room")
}

func (h *Hub) relay(c *Client, msg *signaling.Message) {
	room, ok := h.rooms[c.roomID]
	if !ok {
		h.reject(c, msg.Type, "You must join a room first")
		return
	}

	target, ok := room.Members[call.MemberID(msg.To)]
	if !ok || target == c {
		h.reject(c, msg.Type, "Member not in room")
		return
	}

	h.send(target, &signaling.Message{
		Type:     signaling.MessageTypePeerMessage,
		RoomID:   room.ID.String(),
		MemberID: c.identity.String(),
		To:       msg.To,
		Text:     msg.Text,
	})
	h.metrics.Relayed.Inc()
}

// leaveRoom removes c from its room, tells the others and drops the room
// once it is empty.
func (h *Hub) leaveRoom(c *Client) {
	if c.roomID == "" {
		return
	}
	room, ok := h.rooms[c.roomID]
	c.roomID = ""
	if !ok {
		return
	}

	delete(room.Members, c.identity)
	h.metrics.Members.Dec()

	if len(room.Members) == 0 {
		delete(h.rooms, room.ID)
		h.metrics.Rooms.Dec()
		c.log.Info().Str("room", room.ID.String()).Msg("room deleted")
		return
	}

	for _, other := range room.Members {
		h.send(other, &signaling.Message{
			Type:     signaling.MessageTypeMemberLeft,
			RoomID:   room.ID.String(),
			MemberID: c.identity.String(),
		})
	}
}

func (h *Hub) forget(c *Client) {
	if c.identity == "" {
		return
	}
	if h.identities[c.identity] == c {
		delete(h.identities, c.identity)
	}
	c.identity = ""
}

func (h *Hub) reject(c *Client, op, text string) {
	h.metrics.Rejected.WithLabelValues(op).Inc()
	h.send(c, signaling.NewErrorMessage(op, text))
}

// send never blocks the hub; a client that cannot keep up loses frames.
func (h *Hub) send(c *Client, msg *signaling.Message) {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("send buffer full, dropping frame")
	}
}
