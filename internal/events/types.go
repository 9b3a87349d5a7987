package events

import (
	"time"

	"peerlearn-chat/internal/domain/message"

	"github.com/google/uuid"
)

// InboundType enumerates every client->server event. Dispatch is a closed
// switch over these constants; ParseInbound is the only place a raw string
// becomes an InboundType.
type InboundType string

const (
	InboundJoinRoom       InboundType = "join-room"
	InboundLeaveRoom      InboundType = "leave-room"
	InboundSendMessage    InboundType = "send-message"
	InboundEditMessage    InboundType = "edit-message"
	InboundDeleteMessage  InboundType = "delete-message"
	InboundTypingStart    InboundType = "typing-start"
	InboundTypingStop     InboundType = "typing-stop"
	InboundAddReaction    InboundType = "add-reaction"
	InboundRemoveReaction InboundType = "remove-reaction"
	InboundAckDelivered   InboundType = "ack-delivered"
	InboundAckRead        InboundType = "ack-read"
	InboundPresence       InboundType = "presence"
	InboundPing           InboundType = "ping"
)

// AllInbound lists every inbound variant. The dispatch exhaustiveness test
// iterates this; keep it in sync with the constants above.
func AllInbound() []InboundType {
	return []InboundType{
		InboundJoinRoom,
		InboundLeaveRoom,
		InboundSendMessage,
		InboundEditMessage,
		InboundDeleteMessage,
		InboundTypingStart,
		InboundTypingStop,
		InboundAddReaction,
		InboundRemoveReaction,
		InboundAckDelivered,
		InboundAckRead,
		InboundPresence,
		InboundPing,
	}
}

// ParseInbound maps a wire string to an InboundType.
func ParseInbound(s string) (InboundType, bool) {
	t := InboundType(s)
	switch t {
	case InboundJoinRoom, InboundLeaveRoom,
		InboundSendMessage, InboundEditMessage, InboundDeleteMessage,
		InboundTypingStart, InboundTypingStop,
		InboundAddReaction, InboundRemoveReaction,
		InboundAckDelivered, InboundAckRead,
		InboundPresence, InboundPing:
		return t, true
	}
	return "", false
}

// OutboundType enumerates every server->client event.
type OutboundType string

const (
	OutboundPresenceChanged OutboundType = "presence-changed"
	OutboundMessageCreated  OutboundType = "message-created"
	OutboundMessageUpdated  OutboundType = "message-updated"
	OutboundMessageDeleted  OutboundType = "message-deleted"
	OutboundTypingStart     OutboundType = "typing-start"
	OutboundTypingStop      OutboundType = "typing-stop"
	OutboundReactionAdded   OutboundType = "reaction-added"
	OutboundReactionRemoved OutboundType = "reaction-removed"
	OutboundDeliveryReceipt OutboundType = "delivery-receipt"
	OutboundReadReceipt     OutboundType = "read-receipt"
	OutboundError           OutboundType = "error"
	OutboundPong            OutboundType = "pong"
)

// Inbound payloads.

type RoomPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type SendMessagePayload struct {
	ConversationID uuid.UUID            `json:"conversation_id"`
	Content        string               `json:"content,omitempty"`
	Media          []message.Attachment `json:"media,omitempty"`
	ReplyTo        *uuid.UUID           `json:"reply_to,omitempty"`
	Encrypted      bool                 `json:"encrypted,omitempty"`
}

type EditMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type ReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type AckPayload struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type PresencePayload struct {
	Status string `json:"status"`
}

// Outbound payloads.

type PresenceChangedPayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type MessageDeletedPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type ReactionChangedPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Emoji          string    `json:"emoji"`
	UserID         uuid.UUID `json:"user_id"`
}

type ReceiptPayload struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
	UserID         uuid.UUID   `json:"user_id"`
}

type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Ref    string `json:"ref,omitempty"`
}
