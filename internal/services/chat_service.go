package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"peerlearn-chat/internal/domain/message"
	"peerlearn-chat/internal/events"
	peerlearn_errors "peerlearn-chat/pkg/errors"
	"peerlearn-chat/pkg/logger"

	"github.com/google/uuid"
)

// Broadcaster fans an already-marshaled envelope out to connections. The hub
// implements it; services never touch connections directly.
type Broadcaster interface {
	ToConversation(conversationID uuid.UUID, data []byte)
	ToConversationExceptUser(conversationID uuid.UUID, data []byte, excludeUser uuid.UUID)
	ToAll(data []byte)
}

// ChatService is the message pipeline: it validates, persists, and fans out
// message create/edit/delete. IDs, sequence numbers, and timestamps are
// assigned here, never taken from clients.
type ChatService struct {
	messages   repositoryMessages
	convs      repositoryConversations
	engagement *EngagementService
	broadcast  Broadcaster
	logger     *logger.Logger
	clock      func() time.Time
	newID      func() uuid.UUID

	// locks serializes persist+broadcast per conversation, so subscribers
	// observe messages in persistence order. Rooms never wait on each other.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// Narrow views of the repository interfaces, so tests fake only what the
// pipeline touches.
type repositoryMessages interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time) error
	GetConversationMessages(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error)
}

type repositoryConversations interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

func NewChatService(messages repositoryMessages, convs repositoryConversations, engagement *EngagementService, broadcast Broadcaster, l *logger.Logger) *ChatService {
	return &ChatService{
		messages:   messages,
		convs:      convs,
		engagement: engagement,
		broadcast:  broadcast,
		logger:     l,
		clock:      time.Now,
		newID:      uuid.New,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

type SendMessageInput struct {
	ConversationID uuid.UUID
	Content        string
	Media          []message.Attachment
	ReplyTo        *uuid.UUID
	Encrypted      bool
}

// Send persists a new message and broadcasts it to the conversation room,
// including the sender's own other connections. Persistence is the commit
// point: on failure nothing is broadcast; after it, engagement counters are
// incremented best-effort.
func (s *ChatService) Send(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (message.Message, error) {
	ok, err := s.convs.IsParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return message.Message{}, err
	}
	if !ok {
		return message.Message{}, peerlearn_errors.ErrForbidden
	}

	msg := message.Message{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        toNullString(in.Content),
		Media:          in.Media,
		ReplyToID:      toNullUUID(in.ReplyTo),
		Encrypted:      in.Encrypted,
		CreatedAt:      s.clock(),
	}
	if msg.IsEmpty() {
		return message.Message{}, peerlearn_errors.ErrInvalidInput
	}

	unlock := s.lockConversation(in.ConversationID)
	defer unlock()

	if err := s.messages.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}

	s.broadcastToConversation(events.OutboundMessageCreated, msg.ConversationID, msg.ToView())

	if s.engagement != nil {
		s.engagement.RecordMessageSent(msg.SenderID)
	}

	return msg, nil
}

// Edit replaces the content of a message. Only the original sender may edit,
// and tombstoned messages are gone as far as editing is concerned.
func (s *ChatService) Edit(ctx context.Context, editorID, messageID uuid.UUID, content string) (message.Message, error) {
	if content == "" {
		return message.Message{}, peerlearn_errors.ErrInvalidInput
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if msg.SenderID != editorID {
		return message.Message{}, peerlearn_errors.ErrForbidden
	}
	if msg.IsDeleted() {
		return message.Message{}, peerlearn_errors.ErrNotFound
	}

	editedAt := s.clock()
	if err := s.messages.UpdateContent(ctx, messageID, content, editedAt); err != nil {
		return message.Message{}, err
	}

	msg.Content = toNullString(content)
	msg.EditedAt = sql.NullTime{Time: editedAt, Valid: true}

	s.broadcastToConversation(events.OutboundMessageUpdated, msg.ConversationID, msg.ToView())

	return msg, nil
}

// Delete tombstones a message. The row survives so receipts and reactions
// stay bookable; subscribers only learn the ID and conversation.
func (s *ChatService) Delete(ctx context.Context, requesterID, messageID uuid.UUID) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return peerlearn_errors.ErrForbidden
	}
	if msg.IsDeleted() {
		return peerlearn_errors.ErrNotFound
	}

	if err := s.messages.SoftDelete(ctx, messageID, s.clock()); err != nil {
		return err
	}

	s.broadcastToConversation(events.OutboundMessageDeleted, msg.ConversationID, events.MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})

	return nil
}

// History returns a page of messages for a participant, newest first by
// sequence. Non-participants get ErrForbidden whether or not the
// conversation exists.
func (s *ChatService) History(ctx context.Context, userID, conversationID uuid.UUID, beforeSeq int64, limit int) ([]message.View, error) {
	ok, err := s.convs.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, peerlearn_errors.ErrForbidden
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := s.messages.GetConversationMessages(ctx, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}

	views := make([]message.View, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.ToView())
	}
	return views, nil
}

// IsParticipant exposes the membership check for room joins.
func (s *ChatService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return s.convs.IsParticipant(ctx, conversationID, userID)
}

func (s *ChatService) broadcastToConversation(eventType events.OutboundType, conversationID uuid.UUID, payload interface{}) {
	if s.broadcast == nil {
		return
	}
	data, err := events.Marshal(eventType, payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("marshal %s event: %s", eventType, err)
		}
		return
	}
	s.broadcast.ToConversation(conversationID, data)
}

func (s *ChatService) lockConversation(conversationID uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func toNullUUID(value *uuid.UUID) uuid.NullUUID {
	if value == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *value, Valid: true}
}
