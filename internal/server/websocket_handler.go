package server

import (
	"net/http"
	"strings"

	"peerlearn-chat/internal/redis"
	"peerlearn-chat/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler is the connection gate: it verifies the bearer token
// before the upgrade, so an unauthenticated caller never gets a socket.
type WebSocketHandler struct {
	hub         *Hub
	authService *services.AuthService
	limiter     *redis.RateLimiter
	logger      *WebSocketLogger
}

// NewWebSocketHandler creates a new WebSocket handler. limiter may be nil;
// the per-user connection cap in the hub still applies.
func NewWebSocketHandler(hub *Hub, authService *services.AuthService, limiter *redis.RateLimiter) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
		limiter:     limiter,
		logger:      NewWebSocketLogger(),
	}
}

// Handle upgrades HTTP to WebSocket
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := h.extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := h.authService.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	if h.limiter != nil {
		result, lerr := h.limiter.AllowSocket(c.Request.Context(), userID.String())
		if lerr == nil && !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "connection rate limit exceeded"})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", userID, "", err)
		return
	}

	clientID := uuid.New().String()
	client := NewClient(h.hub, conn, userID, claims.DeviceID, clientID, h.logger)

	h.hub.register <- client
}

func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	// Check query parameter
	token := c.Query("token")
	if token != "" {
		return token
	}

	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}
