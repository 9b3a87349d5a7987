package conversation

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeDirect = "DIRECT"
	TypeGroup  = "GROUP"
)

// Conversation represents the conversations table. Rows are created by the
// conversation-management service; the messaging core reads membership and
// bumps UpdatedAt when a message lands.
type Conversation struct {
	ID        uuid.UUID
	Type      string
	Subject   string
	CreatedBy uuid.NullUUID
	CreatedAt time.Time
	UpdatedAt time.Time

	Participants []Participant
}

// Participant represents the participants table
type Participant struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Role           string
	JoinedAt       time.Time
}

// ConversationSequence represents the conversation_sequences table. It is
// the source of the per-conversation message ordering; SeqIDs are handed out
// inside the message-create transaction.
type ConversationSequence struct {
	ConversationID uuid.UUID
	LastSequence   int64
	UpdatedAt      time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}

func (ConversationSequence) TableName() string {
	return "conversation_sequences"
}
