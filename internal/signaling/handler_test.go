package signaling_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T) string {
	t.Helper()

	reg := prometheus.NewRegistry()
	hub := relay.NewHub(relay.NewMetrics(reg), zerolog.Nop())
	go hub.Run()

	srv := httptest.NewServer(relay.NewRouter(hub, reg))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func connect(t *testing.T, url string) *signaling.Handler {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := signaling.NewClient(url, zerolog.Nop())
	require.NoError(t, client.Connect(ctx))

	h := signaling.NewHandler(client, zerolog.Nop())
	go h.Start()
	t.Cleanup(h.Close)
	return h
}

func nextEvent(t *testing.T, h *signaling.Handler) signaling.Event {
	t.Helper()

	select {
	case ev, ok := <-h.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return signaling.Event{}
	}
}

func TestHandlerJoinAndExchange(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := connect(t, url)
	id, err := alice.Login(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, call.MemberID("alice"), id)

	members, err := alice.Join(ctx, "room")
	require.NoError(t, err)
	assert.Empty(t, members)

	bob := connect(t, url)
	_, err = bob.Login(ctx, "bob")
	require.NoError(t, err)
	members, err = bob.Join(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, []call.MemberID{"alice"}, members)

	ev := nextEvent(t, alice)
	assert.Equal(t, signaling.EventMemberJoined, ev.Type)
	assert.Equal(t, call.MemberID("bob"), ev.Member)

	require.NoError(t, bob.SendToPeer(ctx, "alice", []byte("not json at all")))
	ev = nextEvent(t, alice)
	assert.Equal(t, signaling.EventMessage, ev.Type)
	assert.Equal(t, call.MemberID("bob"), ev.Member)
	assert.Equal(t, []byte("not json at all"), ev.Payload)

	require.NoError(t, bob.Leave(ctx))
	ev = nextEvent(t, alice)
	assert.Equal(t, signaling.EventMemberLeft, ev.Type)
	assert.Equal(t, call.MemberID("bob"), ev.Member)

	// leaving twice is a no-op
	require.NoError(t, bob.Leave(ctx))
	require.NoError(t, bob.Logout(ctx))
}

func TestHandlerJoinErrors(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := connect(t, url)
	_, err := h.Join(ctx, "room")
	require.Error(t, err)
	assert.ErrorIs(t, err, signaling.ErrNotLoggedIn)
	assert.ErrorIs(t, err, call.ErrTransport)

	for _, id := range []call.MemberID{"a", "b"} {
		p := connect(t, url)
		_, err := p.Login(ctx, id)
		require.NoError(t, err)
		_, err = p.Join(ctx, "room")
		require.NoError(t, err)
	}

	_, err = h.Login(ctx, "c")
	require.NoError(t, err)
	_, err = h.Join(ctx, "room")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Room is full")
}

func TestHandlerLoginAssignsIdentity(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := connect(t, url)
	id, err := h.Login(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestHandlerEventsCloseWithConnection(t *testing.T) {
	url := startRelay(t)
	h := connect(t, url)
	h.Close()

	select {
	case _, ok := <-h.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events not closed")
	}
}
