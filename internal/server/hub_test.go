package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"peerlearn-chat/internal/events"
	"peerlearn-chat/internal/presence"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
)

func newTestHub() *Hub {
	return NewHub(presence.NewLedger(), nil, nil, nil)
}

// addTestClient places a client in the hub's connection table without going
// through handleRegister, which would start pumps on a nil conn.
func addTestClient(h *Hub, userID uuid.UUID, clientID string) *Client {
	c := NewClient(h, nil, userID, "", clientID, NewWebSocketLogger())
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*Client)
	}
	h.clients[userID][clientID] = c
	h.mu.Unlock()
	h.ledger.Connected(userID)
	return c
}

func drainSend(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRoomFanout(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()

	a := addTestClient(hub, uuid.New(), "a")
	b := addTestClient(hub, uuid.New(), "b")
	outsider := addTestClient(hub, uuid.New(), "c")

	hub.Join(a, convID)
	hub.Join(b, convID)

	hub.ToConversation(convID, []byte(`{"type":"message-created"}`))

	if got := len(drainSend(a)); got != 1 {
		t.Fatalf("expected 1 frame for a, got %d", got)
	}
	if got := len(drainSend(b)); got != 1 {
		t.Fatalf("expected 1 frame for b, got %d", got)
	}
	if got := len(drainSend(outsider)); got != 0 {
		t.Fatalf("expected no frames outside the room, got %d", got)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()

	a := addTestClient(hub, uuid.New(), "a")
	b := addTestClient(hub, uuid.New(), "b")
	hub.Join(a, convID)
	hub.Join(b, convID)

	hub.Leave(b, convID)
	hub.ToConversation(convID, []byte(`{}`))

	if got := len(drainSend(a)); got != 1 {
		t.Fatalf("expected 1 frame for a, got %d", got)
	}
	if got := len(drainSend(b)); got != 0 {
		t.Fatalf("expected no frames after leave, got %d", got)
	}

	// Leaving a room never joined is a no-op.
	hub.Leave(b, uuid.New())
}

func TestExceptClientSparesOnlyThatConnection(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()
	typist := uuid.New()

	tab1 := addTestClient(hub, typist, "tab1")
	tab2 := addTestClient(hub, typist, "tab2")
	other := addTestClient(hub, uuid.New(), "other")
	hub.Join(tab1, convID)
	hub.Join(tab2, convID)
	hub.Join(other, convID)

	hub.ToConversationExceptClient(convID, []byte(`{}`), tab1)

	if got := len(drainSend(tab1)); got != 0 {
		t.Fatalf("originating connection must not receive its own echo, got %d", got)
	}
	if got := len(drainSend(tab2)); got != 1 {
		t.Fatalf("the typist's other tab should receive the frame, got %d", got)
	}
	if got := len(drainSend(other)); got != 1 {
		t.Fatalf("other members should receive the frame, got %d", got)
	}
}

func TestExceptUserSkipsEveryConnection(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()
	acker := uuid.New()

	tab1 := addTestClient(hub, acker, "tab1")
	tab2 := addTestClient(hub, acker, "tab2")
	other := addTestClient(hub, uuid.New(), "other")
	hub.Join(tab1, convID)
	hub.Join(tab2, convID)
	hub.Join(other, convID)

	hub.ToConversationExceptUser(convID, []byte(`{}`), acker)

	if got := len(drainSend(tab1)) + len(drainSend(tab2)); got != 0 {
		t.Fatalf("all of the excluded user's connections must be skipped, got %d", got)
	}
	if got := len(drainSend(other)); got != 1 {
		t.Fatalf("other members should receive the frame, got %d", got)
	}
}

func TestToAllReachesEveryClient(t *testing.T) {
	hub := newTestHub()

	a := addTestClient(hub, uuid.New(), "a")
	b := addTestClient(hub, uuid.New(), "b")

	hub.ToAll([]byte(`{}`))

	if got := len(drainSend(a)); got != 1 {
		t.Fatalf("expected 1 frame for a, got %d", got)
	}
	if got := len(drainSend(b)); got != 1 {
		t.Fatalf("expected 1 frame for b, got %d", got)
	}
}

func TestDeliverDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()
	c := addTestClient(hub, uuid.New(), "slow")
	c.send = make(chan []byte, 1)
	hub.Join(c, convID)

	hub.ToConversation(convID, []byte(`first`))
	hub.ToConversation(convID, []byte(`second`))

	frames := drainSend(c)
	if len(frames) != 1 {
		t.Fatalf("expected overflow frame to drop, got %d frames", len(frames))
	}
	if string(frames[0]) != "first" {
		t.Fatalf("expected the first frame to survive, got %q", frames[0])
	}
}

func TestDeliverRemoteFansOutWithoutRepublish(t *testing.T) {
	hub := newTestHub()
	convID := uuid.New()
	excluded := uuid.New()

	member := addTestClient(hub, uuid.New(), "member")
	skipped := addTestClient(hub, excluded, "skipped")
	hub.Join(member, convID)
	hub.Join(skipped, convID)

	hub.DeliverRemote(&convID, &excluded, []byte(`{}`))

	if got := len(drainSend(member)); got != 1 {
		t.Fatalf("expected 1 frame for member, got %d", got)
	}
	if got := len(drainSend(skipped)); got != 0 {
		t.Fatalf("excluded user must be skipped on remote frames too, got %d", got)
	}

	everyone := addTestClient(hub, uuid.New(), "everyone")
	hub.DeliverRemote(nil, nil, []byte(`{}`))
	if got := len(drainSend(everyone)); got != 1 {
		t.Fatalf("nil conversation means global fan-out, got %d", got)
	}
}

func TestEvictionReleasesPresenceAndRooms(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	convID := uuid.New()

	clients := make([]*Client, 0, maxConnectionsPerUser)
	for i := 0; i < maxConnectionsPerUser; i++ {
		c := addTestClient(hub, userID, fmt.Sprintf("tab%d", i))
		hub.Join(c, convID)
		clients = append(clients, c)
	}

	extra := NewClient(hub, nil, userID, "", "overflow", NewWebSocketLogger())
	evicted, ok := hub.admit(extra)
	if !ok {
		t.Fatal("a connection within the rate window must be admitted")
	}
	if evicted == nil {
		t.Fatal("hitting the cap must evict an existing connection")
	}
	hub.settleDisconnect(evicted)
	hub.ledger.Connected(userID)

	hub.mu.RLock()
	_, stillInRoom := hub.rooms[convID][evicted]
	hub.mu.RUnlock()
	if stillInRoom {
		t.Fatal("evicted connection must be dropped from its rooms")
	}

	// The evicted connection's read pump still fires an unregister later; it
	// must be a no-op, not a second ledger decrement.
	hub.handleUnregister(evicted)
	if got := hub.OnlineCount(); got != 1 {
		t.Fatalf("user should still be online with live connections, got %d online", got)
	}

	for _, c := range clients {
		if c == evicted {
			continue
		}
		hub.handleUnregister(c)
	}
	hub.handleUnregister(extra)

	if got := hub.OnlineCount(); got != 0 {
		t.Fatalf("all connections closed, but %d user(s) still online", got)
	}
}

func TestSetPresenceAnnouncesGlobally(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	c := addTestClient(hub, userID, "c")
	watcher := addTestClient(hub, uuid.New(), "watcher")
	drainSend(c)
	drainSend(watcher)

	if err := hub.SetPresence(c, "away"); err != nil {
		t.Fatalf("set presence: %v", err)
	}

	frames := drainSend(watcher)
	if len(frames) != 1 {
		t.Fatalf("expected 1 presence frame, got %d", len(frames))
	}
	var env events.Envelope
	if err := json.Unmarshal(frames[0], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != string(events.OutboundPresenceChanged) {
		t.Fatalf("expected presence-changed, got %q", env.Type)
	}
	var payload events.PresenceChangedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != userID || payload.Status != "away" {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestSetPresenceRejectsOfflineAndUnknown(t *testing.T) {
	hub := newTestHub()
	c := addTestClient(hub, uuid.New(), "c")

	if err := hub.SetPresence(c, "offline"); !errors.Is(err, peerlearn_errors.ErrInvalidInput) {
		t.Fatalf("offline must be refused, got %v", err)
	}
	if err := hub.SetPresence(c, "invisible"); !errors.Is(err, peerlearn_errors.ErrInvalidInput) {
		t.Fatalf("unknown status must be refused, got %v", err)
	}
}
