package services

import (
	"context"
	"time"

	"peerlearn-chat/internal/domain/message"
	"peerlearn-chat/internal/events"
	peerlearn_errors "peerlearn-chat/pkg/errors"
	"peerlearn-chat/pkg/logger"

	"github.com/google/uuid"
)

type repositoryReactions interface {
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	AddReaction(ctx context.Context, r *message.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
}

// ReactionService keeps the emoji -> reacting-users ledger per message. Adds
// and removes are idempotent; only actual changes broadcast.
type ReactionService struct {
	messages  repositoryReactions
	convs     repositoryConversations
	broadcast Broadcaster
	logger    *logger.Logger
	clock     func() time.Time
}

func NewReactionService(messages repositoryReactions, convs repositoryConversations, broadcast Broadcaster, l *logger.Logger) *ReactionService {
	return &ReactionService{
		messages:  messages,
		convs:     convs,
		broadcast: broadcast,
		logger:    l,
		clock:     time.Now,
	}
}

func (s *ReactionService) Add(ctx context.Context, userID, messageID uuid.UUID, emoji string) error {
	if emoji == "" {
		return peerlearn_errors.ErrInvalidInput
	}

	msg, err := s.authorize(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted() {
		return peerlearn_errors.ErrNotFound
	}

	changed, err := s.messages.AddReaction(ctx, &message.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.clock(),
	})
	if err != nil {
		return err
	}
	if changed {
		s.announce(events.OutboundReactionAdded, msg, userID, emoji)
	}
	return nil
}

func (s *ReactionService) Remove(ctx context.Context, userID, messageID uuid.UUID, emoji string) error {
	if emoji == "" {
		return peerlearn_errors.ErrInvalidInput
	}

	msg, err := s.authorize(ctx, userID, messageID)
	if err != nil {
		return err
	}

	changed, err := s.messages.RemoveReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return err
	}
	if changed {
		s.announce(events.OutboundReactionRemoved, msg, userID, emoji)
	}
	return nil
}

func (s *ReactionService) authorize(ctx context.Context, userID, messageID uuid.UUID) (message.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	ok, err := s.convs.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return message.Message{}, err
	}
	if !ok {
		return message.Message{}, peerlearn_errors.ErrForbidden
	}
	return msg, nil
}

func (s *ReactionService) announce(eventType events.OutboundType, msg message.Message, userID uuid.UUID, emoji string) {
	if s.broadcast == nil {
		return
	}
	data, err := events.Marshal(eventType, events.ReactionChangedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Emoji:          emoji,
		UserID:         userID,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("marshal %s event: %s", eventType, err)
		}
		return
	}
	s.broadcast.ToConversation(msg.ConversationID, data)
}
