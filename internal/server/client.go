package server

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"peerlearn-chat/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Rate limits per minute
type RateLimits struct {
	MaxMessages        int
	MaxTypingEvents    int
	MaxReceipts        int
	MaxReactions       int
	MaxPresenceUpdates int
	MaxRoomChanges     int
	MaxPingMessages    int
}

var DefaultRateLimits = RateLimits{
	MaxMessages:        60,
	MaxTypingEvents:    60,
	MaxReceipts:        120,
	MaxReactions:       60,
	MaxPresenceUpdates: 30,
	MaxRoomChanges:     60,
	MaxPingMessages:    60,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	messageTokens  int
	typingTokens   int
	receiptTokens  int
	reactionTokens int
	presenceTokens int
	roomTokens     int
	pingTokens     int
	lastRefill     time.Time
	mu             sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	now := time.Now()
	return &ClientRateLimiter{
		messageTokens:  DefaultRateLimits.MaxMessages,
		typingTokens:   DefaultRateLimits.MaxTypingEvents,
		receiptTokens:  DefaultRateLimits.MaxReceipts,
		reactionTokens: DefaultRateLimits.MaxReactions,
		presenceTokens: DefaultRateLimits.MaxPresenceUpdates,
		roomTokens:     DefaultRateLimits.MaxRoomChanges,
		pingTokens:     DefaultRateLimits.MaxPingMessages,
		lastRefill:     now,
	}
}

func (rl *ClientRateLimiter) Allow(eventType events.InboundType) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)

	if elapsed >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	switch eventType {
	case events.InboundSendMessage, events.InboundEditMessage, events.InboundDeleteMessage:
		if rl.messageTokens > 0 {
			rl.messageTokens--
			return true
		}
	case events.InboundTypingStart, events.InboundTypingStop:
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case events.InboundAckDelivered, events.InboundAckRead:
		if rl.receiptTokens > 0 {
			rl.receiptTokens--
			return true
		}
	case events.InboundAddReaction, events.InboundRemoveReaction:
		if rl.reactionTokens > 0 {
			rl.reactionTokens--
			return true
		}
	case events.InboundPresence:
		if rl.presenceTokens > 0 {
			rl.presenceTokens--
			return true
		}
	case events.InboundJoinRoom, events.InboundLeaveRoom:
		if rl.roomTokens > 0 {
			rl.roomTokens--
			return true
		}
	case events.InboundPing:
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.messageTokens = DefaultRateLimits.MaxMessages
	rl.typingTokens = DefaultRateLimits.MaxTypingEvents
	rl.receiptTokens = DefaultRateLimits.MaxReceipts
	rl.reactionTokens = DefaultRateLimits.MaxReactions
	rl.presenceTokens = DefaultRateLimits.MaxPresenceUpdates
	rl.roomTokens = DefaultRateLimits.MaxRoomChanges
	rl.pingTokens = DefaultRateLimits.MaxPingMessages
}

// Client represents a single WebSocket connection
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       uuid.UUID
	clientID     string
	deviceID     string
	rooms        map[uuid.UUID]bool
	rateLimiter  *ClientRateLimiter
	isClosing    int32
	connectedAt  time.Time
	lastActivity int64 // unix nanos; written by readPump, read by writePump
	logger       *WebSocketLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, deviceID string, clientID string, logger *WebSocketLogger) *Client {
	now := time.Now()
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		userID:       userID,
		deviceID:     deviceID,
		clientID:     clientID,
		rooms:        make(map[uuid.UUID]bool),
		rateLimiter:  NewClientRateLimiter(),
		connectedAt:  now,
		lastActivity: now.UnixNano(),
		logger:       logger,
	}
}

func (c *Client) markActivity() {
	atomic.StoreInt64(&c.lastActivity, time.Now().UnixNano())
}

func (c *Client) idleFor() time.Duration {
	return time.Since(time.Unix(0, atomic.LoadInt64(&c.lastActivity)))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.markActivity()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.markActivity()

		if c.hub.dispatcher != nil {
			c.hub.dispatcher.Dispatch(c, message)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if c.idleFor() > pongWait*2 {
				c.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}
