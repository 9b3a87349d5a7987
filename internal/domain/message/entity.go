package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Attachment is an opaque media descriptor. Blobs are uploaded by an
// external collaborator before the message references them.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Message represents the messages table. ID, SeqID and CreatedAt are
// assigned at persistence time and never trusted from clients. Deletion is a
// tombstone: the row survives so receipts and reactions stay valid.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	SeqID          int64
	Content        sql.NullString
	Media          []Attachment `gorm:"type:jsonb;serializer:json"`
	ReplyToID      uuid.NullUUID
	Encrypted      bool
	CreatedAt      time.Time
	EditedAt       sql.NullTime
	DeletedAt      sql.NullTime

	Reactions []Reaction `gorm:"foreignKey:MessageID"`
	Receipts  []Receipt  `gorm:"foreignKey:MessageID"`
}

// Reaction represents message_reactions. Unique per (message, user, emoji).
type Reaction struct {
	MessageID uuid.UUID `gorm:"primaryKey"`
	UserID    uuid.UUID `gorm:"primaryKey"`
	Emoji     string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// Receipt represents message_receipts. DeliveredAt and ReadAt are set once
// and never cleared; that is what makes acknowledgement idempotent.
type Receipt struct {
	MessageID   uuid.UUID `gorm:"primaryKey"`
	UserID      uuid.UUID `gorm:"primaryKey"`
	DeliveredAt sql.NullTime
	ReadAt      sql.NullTime
	UpdatedAt   time.Time
}

func (m Message) IsDeleted() bool {
	return m.DeletedAt.Valid
}

func (m Message) IsEmpty() bool {
	return !m.Content.Valid && len(m.Media) == 0
}

func (Message) TableName() string {
	return "messages"
}

func (Reaction) TableName() string {
	return "message_reactions"
}

func (Receipt) TableName() string {
	return "message_receipts"
}
