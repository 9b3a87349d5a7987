package services

import (
	"context"
	"time"

	"peerlearn-chat/internal/events"
	peerlearn_errors "peerlearn-chat/pkg/errors"
	"peerlearn-chat/pkg/logger"

	"github.com/google/uuid"
)

type repositoryReceipts interface {
	MarkDelivered(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)
}

// ReceiptService records delivered/read acknowledgements. Sets only grow;
// re-acknowledging is a no-op and unchanged acks are not re-broadcast.
// Acknowledgers must be conversation participants.
type ReceiptService struct {
	messages  repositoryReceipts
	convs     repositoryConversations
	broadcast Broadcaster
	logger    *logger.Logger
	clock     func() time.Time
}

func NewReceiptService(messages repositoryReceipts, convs repositoryConversations, broadcast Broadcaster, l *logger.Logger) *ReceiptService {
	return &ReceiptService{
		messages:  messages,
		convs:     convs,
		broadcast: broadcast,
		logger:    l,
		clock:     time.Now,
	}
}

func (s *ReceiptService) AckDelivered(ctx context.Context, userID, conversationID uuid.UUID, messageIDs []uuid.UUID) error {
	return s.ack(ctx, userID, conversationID, messageIDs, s.messages.MarkDelivered, events.OutboundDeliveryReceipt)
}

func (s *ReceiptService) AckRead(ctx context.Context, userID, conversationID uuid.UUID, messageIDs []uuid.UUID) error {
	return s.ack(ctx, userID, conversationID, messageIDs, s.messages.MarkRead, events.OutboundReadReceipt)
}

type markFunc func(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error)

func (s *ReceiptService) ack(ctx context.Context, userID, conversationID uuid.UUID, messageIDs []uuid.UUID, mark markFunc, eventType events.OutboundType) error {
	if len(messageIDs) == 0 {
		return peerlearn_errors.ErrInvalidInput
	}

	ok, err := s.convs.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return peerlearn_errors.ErrForbidden
	}

	changed, err := mark(ctx, conversationID, messageIDs, userID, s.clock())
	if err != nil {
		return err
	}
	if len(changed) == 0 || s.broadcast == nil {
		return nil
	}

	data, err := events.Marshal(eventType, events.ReceiptPayload{
		ConversationID: conversationID,
		MessageIDs:     changed,
		UserID:         userID,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("marshal %s event: %s", eventType, err)
		}
		return nil
	}

	// The acknowledger's own connections already know; leave them out.
	s.broadcast.ToConversationExceptUser(conversationID, data, userID)
	return nil
}
