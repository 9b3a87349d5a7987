package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"peerlearn-chat/internal/domain/user"
	"peerlearn-chat/internal/events"
	"peerlearn-chat/internal/presence"
	"peerlearn-chat/internal/repository"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
)

// Hub maintains the set of active clients, their room subscriptions, and the
// presence ledger. All fan-out goes through the Hub; it implements
// services.Broadcaster for the local process and events.Sink for frames
// arriving from other instances.
type Hub struct {
	clients     map[uuid.UUID]map[string]*Client
	rooms       map[uuid.UUID]map[*Client]bool
	register    chan *Client
	unregister  chan *Client
	ledger      *presence.Ledger
	store       *presence.Store
	users       repository.UserRepository
	bridge      *events.RedisBridge
	dispatcher  *Dispatcher
	rateLimiter *WebSocketRateLimiter
	logger      *WebSocketLogger
	mu          sync.RWMutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
	isRunning   int32
}

// WebSocketRateLimiter tracks connection attempts per user
type WebSocketRateLimiter struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	mu                 sync.Mutex
}

func NewWebSocketRateLimiter() *WebSocketRateLimiter {
	wrl := &WebSocketRateLimiter{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
	}
	go wrl.cleanupLoop()
	return wrl
}

func (w *WebSocketRateLimiter) AllowConnection(userID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	validConnections := []time.Time{}
	for _, t := range w.connectionsPerUser[userID] {
		if t.After(windowStart) {
			validConnections = append(validConnections, t)
		}
	}

	if len(validConnections) >= 10 {
		return false
	}

	w.connectionsPerUser[userID] = append(validConnections, now)
	return true
}

func (w *WebSocketRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		w.cleanup()
	}
}

func (w *WebSocketRateLimiter) cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)

	for userID, times := range w.connectionsPerUser {
		valid := []time.Time{}
		for _, t := range times {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(w.connectionsPerUser, userID)
		} else {
			w.connectionsPerUser[userID] = valid
		}
	}
}

// NewHub creates a new Hub. store, users, and bridge may be nil; presence then
// lives only in the in-process ledger.
func NewHub(ledger *presence.Ledger, store *presence.Store, users repository.UserRepository, bridge *events.RedisBridge) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]map[string]*Client),
		rooms:       make(map[uuid.UUID]map[*Client]bool),
		register:    make(chan *Client, 256),
		unregister:  make(chan *Client, 256),
		ledger:      ledger,
		store:       store,
		users:       users,
		bridge:      bridge,
		rateLimiter: NewWebSocketRateLimiter(),
		logger:      NewWebSocketLogger(),
		stopChan:    make(chan struct{}),
	}
}

// AttachDispatcher wires the inbound event dispatcher. Must be called before
// Run; the dispatcher needs the hub for fan-out, so neither can construct the
// other.
func (h *Hub) AttachDispatcher(d *Dispatcher) {
	h.dispatcher = d
}

// Run starts the Hub
func (h *Hub) Run() {
	atomic.StoreInt32(&h.isRunning, 1)
	defer atomic.StoreInt32(&h.isRunning, 0)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case <-h.stopChan:
			h.wg.Wait()
			return
		}
	}
}

const maxConnectionsPerUser = 10

func (h *Hub) handleRegister(client *Client) {
	evicted, ok := h.admit(client)
	if !ok {
		client.conn.Close()
		return
	}
	if evicted != nil {
		h.settleDisconnect(evicted)
	}

	first := h.ledger.Connected(client.userID)

	h.logger.Info("client connected", client.userID, client.clientID)

	go client.writePump()
	go client.readPump()

	if first {
		entry := h.ledger.Get(client.userID)
		h.announcePresence(client.userID, user.StatusOnline, nil)
		h.persistPresence(client.userID, user.StatusOnline, entry.LastSeen)
	}
}

// admit places the client in the connection table. When the user is at the
// connection cap, one existing connection is fully torn down to make room;
// the caller must settle its ledger entry. Returns false when the connection
// window is exhausted.
func (h *Hub) admit(client *Client) (evicted *Client, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.rateLimiter.AllowConnection(client.userID) {
		h.logger.Warn("connection rate limit exceeded", client.userID, client.clientID)
		return nil, false
	}

	if len(h.clients[client.userID]) >= maxConnectionsPerUser {
		h.logger.Warn("max connections per user reached", client.userID, client.clientID)
		for _, c := range h.clients[client.userID] {
			evicted = c
			break
		}
		h.detachLocked(evicted)
	}

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[string]*Client)
	}
	h.clients[client.userID][client.clientID] = client
	return evicted, true
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	detached := h.detachLocked(client)
	h.mu.Unlock()

	if !detached {
		// Already torn down, e.g. evicted by a newer connection whose read
		// pump has since exited.
		return
	}

	h.logger.Info("client disconnected", client.userID, client.clientID)
	h.settleDisconnect(client)
}

// detachLocked removes the client from the connection table and every room it
// joined, and closes its send channel. Callers hold h.mu. The ledger is not
// touched here; settleDisconnect does that outside the lock.
func (h *Hub) detachLocked(client *Client) bool {
	userClients, ok := h.clients[client.userID]
	if !ok {
		return false
	}
	if _, ok := userClients[client.clientID]; !ok {
		return false
	}

	delete(userClients, client.clientID)
	if len(userClients) == 0 {
		delete(h.clients, client.userID)
	}
	for convID := range client.rooms {
		h.dropFromRoom(client, convID)
	}
	h.removeClient(client)
	return true
}

// settleDisconnect releases the client's ledger count and, when it was the
// user's last connection, announces and persists the offline transition.
func (h *Hub) settleDisconnect(client *Client) {
	last, lastSeen := h.ledger.Disconnected(client.userID)
	if last {
		h.announcePresence(client.userID, user.StatusOffline, &lastSeen)
		h.persistPresence(client.userID, user.StatusOffline, lastSeen)
	}
}

func (h *Hub) removeClient(client *Client) {
	if atomic.CompareAndSwapInt32(&client.isClosing, 0, 1) {
		close(client.send)
	}
	if client.conn != nil {
		client.conn.Close()
	}
}

// Join subscribes a client to a conversation room. Membership was already
// checked by the dispatcher.
func (h *Hub) Join(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][client] = true
	client.rooms[conversationID] = true
}

// Leave unsubscribes a client from a conversation room. Leaving a room the
// client never joined is a no-op.
func (h *Hub) Leave(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropFromRoom(client, conversationID)
	delete(client.rooms, conversationID)
}

func (h *Hub) dropFromRoom(client *Client, conversationID uuid.UUID) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// InRoom reports whether the client currently subscribes to the room.
func (h *Hub) InRoom(client *Client, conversationID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.rooms[conversationID]
}

// ToConversation fans data out to every connection subscribed to the room,
// here and on other instances.
func (h *Hub) ToConversation(conversationID uuid.UUID, data []byte) {
	h.localToConversation(conversationID, data, nil)
	h.publishRemote(&conversationID, nil, data)
}

// ToConversationExceptUser fans data out to the room, skipping every
// connection owned by excludeUser.
func (h *Hub) ToConversationExceptUser(conversationID uuid.UUID, data []byte, excludeUser uuid.UUID) {
	h.localToConversation(conversationID, data, func(c *Client) bool {
		return c.userID == excludeUser
	})
	h.publishRemote(&conversationID, &excludeUser, data)
}

// ToConversationExceptClient fans data out to the room, skipping one specific
// connection. The typing relay uses this: the typist's other tabs still see
// their own indicator, only the originating connection is spared its echo.
func (h *Hub) ToConversationExceptClient(conversationID uuid.UUID, data []byte, exclude *Client) {
	h.localToConversation(conversationID, data, func(c *Client) bool {
		return c == exclude
	})
	h.publishRemote(&conversationID, nil, data)
}

// ToAll fans data out to every connection on every instance.
func (h *Hub) ToAll(data []byte) {
	h.localToAll(data, nil)
	h.publishRemote(nil, nil, data)
}

// DeliverRemote injects a frame published by another instance. It never
// republishes, so frames cannot loop.
func (h *Hub) DeliverRemote(conversationID *uuid.UUID, excludeUser *uuid.UUID, data []byte) {
	skip := func(*Client) bool { return false }
	if excludeUser != nil {
		skip = func(c *Client) bool { return c.userID == *excludeUser }
	}
	if conversationID == nil {
		h.localToAll(data, skip)
		return
	}
	h.localToConversation(*conversationID, data, skip)
}

func (h *Hub) localToConversation(conversationID uuid.UUID, data []byte, skip func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[conversationID] {
		if skip != nil && skip(client) {
			continue
		}
		h.deliver(client, data)
	}
}

func (h *Hub) localToAll(data []byte, skip func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			if skip != nil && skip(client) {
				continue
			}
			h.deliver(client, data)
		}
	}
}

// deliver drops the envelope when the client's buffer is full rather than
// block the whole fan-out on one slow connection.
func (h *Hub) deliver(client *Client, data []byte) {
	if atomic.LoadInt32(&client.isClosing) == 1 {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client send buffer full", client.userID, client.clientID)
	}
}

// deliverDirect sends to a single connection, for pongs and error frames.
func (h *Hub) deliverDirect(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(client, data)
}

func (h *Hub) publishRemote(conversationID *uuid.UUID, excludeUser *uuid.UUID, data []byte) {
	if h.bridge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.bridge.Publish(ctx, conversationID, excludeUser, data); err != nil {
		h.logger.Warn("bridge publish failed", uuid.Nil, "")
	}
}

// SetPresence applies an explicit status request (online or away) from one of
// the user's connections. Offline cannot be requested; it falls out of the
// connection count.
func (h *Hub) SetPresence(client *Client, status string) error {
	if !user.ValidStatus(status) || status == user.StatusOffline {
		return peerlearn_errors.ErrInvalidInput
	}
	if !h.ledger.SetExplicit(client.userID, status) {
		return peerlearn_errors.ErrInvalidInput
	}

	entry := h.ledger.Get(client.userID)
	h.announcePresence(client.userID, status, nil)
	h.persistPresence(client.userID, status, entry.LastSeen)
	return nil
}

func (h *Hub) announcePresence(userID uuid.UUID, status string, lastSeen *time.Time) {
	data, err := events.Marshal(events.OutboundPresenceChanged, events.PresenceChangedPayload{
		UserID:   userID,
		Status:   status,
		LastSeen: lastSeen,
	})
	if err != nil {
		h.logger.Error("marshal presence event", userID, "", err)
		return
	}
	h.ToAll(data)
}

// persistPresence mirrors the ledger into Postgres and Redis best-effort; the
// in-process ledger is authoritative while the user stays connected.
func (h *Hub) persistPresence(userID uuid.UUID, status string, lastSeen time.Time) {
	if h.users == nil && h.store == nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if h.users != nil {
			if err := h.users.UpdatePresence(ctx, userID, status, lastSeen); err != nil {
				h.logger.Warn("presence db write failed", userID, "")
			}
		}
		if h.store != nil {
			if err := h.store.SetStatus(ctx, userID, status, lastSeen); err != nil {
				h.logger.Warn("presence redis write failed", userID, "")
			}
		}
	}()
}

// OnlineCount reports how many users have at least one live connection here.
func (h *Hub) OnlineCount() int {
	return h.ledger.OnlineCount()
}

// Stop gracefully shuts down the Hub
func (h *Hub) Stop() {
	close(h.stopChan)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			h.removeClient(client)
		}
	}
	h.clients = make(map[uuid.UUID]map[string]*Client)
	h.rooms = make(map[uuid.UUID]map[*Client]bool)
}
