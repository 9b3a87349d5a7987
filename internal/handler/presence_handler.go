package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"peerlearn-chat/internal/presence"
	"peerlearn-chat/internal/repository"
	"peerlearn-chat/internal/transport/httpdto"
	peerlearn_errors "peerlearn-chat/pkg/errors"
	"peerlearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PresenceHandler answers presence reads from the Redis store, so any
// instance can serve them without asking the hub that owns the connection.
// When Redis is unreachable it falls back to the last persisted user row.
type PresenceHandler struct {
	store  *presence.Store
	users  repository.UserRepository
	logger *logger.Logger
}

func NewPresenceHandler(store *presence.Store, users repository.UserRepository, l *logger.Logger) *PresenceHandler {
	return &PresenceHandler{store: store, users: users, logger: l}
}

// Get handles GET /v1/users/:id/presence
func (h *PresenceHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_INPUT"))
		return
	}

	status, err := h.lookup(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, peerlearn_errors.ErrNotFound) {
			c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("user not found", "NOT_FOUND"))
			return
		}
		if h.logger != nil {
			h.logger.Errorf("presence read failed: %s", err)
		}
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("presence unavailable", "UNAVAILABLE"))
		return
	}

	resp := httpdto.PresenceResponse{
		UserID: status.UserID,
		Status: status.Status,
	}
	if !status.LastSeen.IsZero() {
		resp.LastSeen = status.LastSeen.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

// Online handles GET /v1/presence/online
func (h *PresenceHandler) Online(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("presence unavailable", "UNAVAILABLE"))
		return
	}

	ids, err := h.store.OnlineUsers(c.Request.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("online set read failed: %s", err)
		}
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("presence unavailable", "UNAVAILABLE"))
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.OnlineUsersResponse{
		UserIDs: ids,
		Count:   len(ids),
	}))
}

func (h *PresenceHandler) lookup(ctx context.Context, userID uuid.UUID) (presence.Status, error) {
	if h.store != nil {
		status, err := h.store.GetStatus(ctx, userID)
		if err == nil {
			return status, nil
		}
		if h.logger != nil {
			h.logger.Warnf("presence redis read failed, falling back to database: %s", err)
		}
	}

	if h.users == nil {
		return presence.Status{}, peerlearn_errors.ErrServiceUnavailable
	}
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return presence.Status{}, err
	}

	status := presence.Status{UserID: u.ID.String(), Status: u.Status}
	if u.LastSeenAt.Valid {
		status.LastSeen = u.LastSeenAt.Time
	}
	return status, nil
}
