package httpdto

import (
	"peerlearn-chat/internal/domain/message"
)

type HistoryResponse struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []message.View `json:"messages"`
}

type PresenceResponse struct {
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen,omitempty"`
}

type OnlineUsersResponse struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}
