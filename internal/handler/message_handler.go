package handler

import (
	"errors"
	"net/http"
	"strconv"

	"peerlearn-chat/internal/services"
	"peerlearn-chat/internal/transport/httpdto"
	peerlearn_errors "peerlearn-chat/pkg/errors"
	"peerlearn-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageHandler serves message history over HTTP. Everything realtime goes
// over the socket; this is the catch-up path for clients joining a room.
type MessageHandler struct {
	chat   *services.ChatService
	logger *logger.Logger
}

func NewMessageHandler(chat *services.ChatService, l *logger.Logger) *MessageHandler {
	return &MessageHandler{chat: chat, logger: l}
}

// History handles GET /v1/conversations/:id/messages
func (h *MessageHandler) History(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_INPUT"))
		return
	}

	beforeSeq := int64(0)
	if raw := c.Query("before_seq"); raw != "" {
		beforeSeq, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || beforeSeq < 0 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid before_seq", "INVALID_INPUT"))
			return
		}
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid limit", "INVALID_INPUT"))
			return
		}
	}

	views, err := h.chat.History(c.Request.Context(), userID, conversationID, beforeSeq, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.HistoryResponse{
		ConversationID: conversationID.String(),
		Messages:       views,
	}))
}

func (h *MessageHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, peerlearn_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	case errors.Is(err, peerlearn_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, peerlearn_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid input", "INVALID_INPUT"))
	default:
		if h.logger != nil {
			h.logger.Errorf("history request failed: %s", err)
		}
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
	}
}
