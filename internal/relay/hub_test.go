package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	srv *httptest.Server
	hub *Hub
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()

	reg := prometheus.NewRegistry()
	hub := NewHub(NewMetrics(reg), zerolog.Nop())
	go hub.Run()

	srv := httptest.NewServer(NewRouter(hub, reg))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return &testRelay{srv: srv, hub: hub}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg signaling.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func expect(t *testing.T, conn *websocket.Conn, msgType string) signaling.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg signaling.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, msgType, msg.Type, "unexpected frame: %+v", msg)
	return msg
}

func expectError(t *testing.T, conn *websocket.Conn) signaling.ErrorPayload {
	t.Helper()

	msg := expect(t, conn, signaling.MessageTypeError)
	var p signaling.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func login(t *testing.T, conn *websocket.Conn, id string) string {
	t.Helper()

	send(t, conn, signaling.Message{Type: signaling.MessageTypeLogin, MemberID: id})
	return expect(t, conn, signaling.MessageTypeLoginSuccess).MemberID
}

func join(t *testing.T, conn *websocket.Conn, room string) []string {
	t.Helper()

	send(t, conn, signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: room})
	msg := expect(t, conn, signaling.MessageTypeJoinSuccess)
	var p signaling.JoinPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p.Members
}

func TestLogin(t *testing.T) {
	r := startRelay(t)

	t.Run("assigns identity when none requested", func(t *testing.T) {
		id := login(t, r.dial(t), "")
		assert.Len(t, id, 36)
	})

	t.Run("keeps requested identity", func(t *testing.T) {
		assert.Equal(t, "alice", login(t, r.dial(t), "alice"))
	})

	t.Run("rejects identity in use", func(t *testing.T) {
		login(t, r.dial(t), "bob")

		conn := r.dial(t)
		send(t, conn, signaling.Message{Type: signaling.MessageTypeLogin, MemberID: "bob"})
		p := expectError(t, conn)
		assert.Equal(t, "Identity in use", p.Error)
		assert.Equal(t, signaling.MessageTypeLogin, p.Op)
	})
}

func TestJoinRequiresLogin(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	send(t, conn, signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "r1"})
	p := expectError(t, conn)
	assert.Equal(t, "You must log in first", p.Error)
}

func TestJoinAnnouncesMembers(t *testing.T) {
	r := startRelay(t)

	a := r.dial(t)
	login(t, a, "a")
	assert.Empty(t, join(t, a, "r1"))

	b := r.dial(t)
	login(t, b, "b")
	assert.Equal(t, []string{"a"}, join(t, b, "r1"))

	joined := expect(t, a, signaling.MessageTypeMemberJoined)
	assert.Equal(t, "b", joined.MemberID)
	assert.Equal(t, "r1", joined.RoomID)
}

func TestRoomIsFull(t *testing.T) {
	r := startRelay(t)

	for _, id := range []string{"a", "b"} {
		conn := r.dial(t)
		login(t, conn, id)
		join(t, conn, "r1")
	}

	c := r.dial(t)
	login(t, c, "c")
	send(t, c, signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "r1"})
	assert.Equal(t, "Room is full", expectError(t, c).Error)
}

func TestPeerMessageRelayed(t *testing.T) {
	r := startRelay(t)

	a := r.dial(t)
	login(t, a, "a")
	join(t, a, "r1")

	b := r.dial(t)
	login(t, b, "b")
	join(t, b, "r1")
	expect(t, a, signaling.MessageTypeMemberJoined)

	send(t, b, signaling.Message{Type: signaling.MessageTypePeerMessage, To: "a", Text: `{"type":"offer"}`})

	msg := expect(t, a, signaling.MessageTypePeerMessage)
	assert.Equal(t, "b", msg.MemberID)
	assert.Equal(t, `{"type":"offer"}`, msg.Text)

	t.Run("unknown target is rejected", func(t *testing.T) {
		send(t, b, signaling.Message{Type: signaling.MessageTypePeerMessage, To: "zed", Text: "x"})
		p := expectError(t, b)
		assert.Equal(t, signaling.MessageTypePeerMessage, p.Op)
	})
}

func TestLeaveNotifiesOthers(t *testing.T) {
	r := startRelay(t)

	a := r.dial(t)
	login(t, a, "a")
	join(t, a, "r1")

	b := r.dial(t)
	login(t, b, "b")
	join(t, b, "r1")
	expect(t, a, signaling.MessageTypeMemberJoined)

	send(t, b, signaling.Message{Type: signaling.MessageTypeLeaveRoom})
	expect(t, b, signaling.MessageTypeLeft)
	assert.Equal(t, "b", expect(t, a, signaling.MessageTypeMemberLeft).MemberID)

	// the freed slot can be taken again
	assert.Equal(t, []string{"a"}, join(t, b, "r1"))
	expect(t, a, signaling.MessageTypeMemberJoined)
}

func TestDisconnectNotifiesOthers(t *testing.T) {
	r := startRelay(t)

	a := r.dial(t)
	login(t, a, "a")
	join(t, a, "r1")

	b := r.dial(t)
	login(t, b, "b")
	join(t, b, "r1")
	expect(t, a, signaling.MessageTypeMemberJoined)

	require.NoError(t, b.Close())
	assert.Equal(t, "b", expect(t, a, signaling.MessageTypeMemberLeft).MemberID)

	// identity is released with the connection
	assert.Equal(t, "b", login(t, r.dial(t), "b"))
}

func TestHealthAndMetrics(t *testing.T) {
	r := startRelay(t)

	a := r.dial(t)
	login(t, a, "a")
	join(t, a, "r1")

	resp, err := http.Get(r.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(r.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "warpcall_relay_rooms 1")
	assert.Contains(t, string(body), "warpcall_relay_members 1")
}
