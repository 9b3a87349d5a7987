package repository

import (
	"context"
	"time"

	"peerlearn-chat/internal/domain/message"
	"peerlearn-chat/internal/domain/user"

	"github.com/google/uuid"
)

// MessageRepository is the persisted-message store. Create is the commit
// point for a send: it assigns the conversation sequence and bumps the
// conversation's updated_at in the same transaction.
type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time) error
	GetConversationMessages(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error)

	// AddReaction and RemoveReaction report whether the reaction set
	// actually changed, so callers can suppress no-op broadcasts.
	AddReaction(ctx context.Context, r *message.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)

	// MarkDelivered and MarkRead grow receipt sets monotonically and return
	// the IDs whose sets changed. IDs outside the conversation are ignored.
	MarkDelivered(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)
}

// ConversationRepository reads membership persisted by the external
// conversation-management service.
type ConversationRepository interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// UserRepository covers the slice of the users table this module owns:
// presence and engagement counters.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	UpdatePresence(ctx context.Context, userID uuid.UUID, status string, lastSeen time.Time) error
	IncrementEngagement(ctx context.Context, userID uuid.UUID, messages, xp int64) error
}
