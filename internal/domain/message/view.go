package message

import (
	"time"

	"github.com/google/uuid"
)

// View is the wire shape of a message. Reactions collapse to emoji -> user
// set and receipts to delivered/read sets. Tombstoned messages keep their
// metadata but never carry content or media on the wire.
type View struct {
	ID             uuid.UUID              `json:"id"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	SenderID       uuid.UUID              `json:"sender_id"`
	SeqID          int64                  `json:"seq_id"`
	Content        *string                `json:"content,omitempty"`
	Media          []Attachment           `json:"media,omitempty"`
	ReplyToID      *uuid.UUID             `json:"reply_to_id,omitempty"`
	Encrypted      bool                   `json:"encrypted"`
	CreatedAt      time.Time              `json:"created_at"`
	EditedAt       *time.Time             `json:"edited_at,omitempty"`
	Deleted        bool                   `json:"deleted,omitempty"`
	Reactions      map[string][]uuid.UUID `json:"reactions"`
	DeliveredTo    []uuid.UUID            `json:"delivered_to"`
	ReadBy         []uuid.UUID            `json:"read_by"`
}

func (m Message) ToView() View {
	v := View{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SeqID:          m.SeqID,
		Encrypted:      m.Encrypted,
		CreatedAt:      m.CreatedAt,
		Deleted:        m.IsDeleted(),
		Reactions:      make(map[string][]uuid.UUID),
		DeliveredTo:    []uuid.UUID{},
		ReadBy:         []uuid.UUID{},
	}

	if !m.IsDeleted() {
		if m.Content.Valid {
			content := m.Content.String
			v.Content = &content
		}
		v.Media = m.Media
	}
	if m.ReplyToID.Valid {
		replyTo := m.ReplyToID.UUID
		v.ReplyToID = &replyTo
	}
	if m.EditedAt.Valid {
		editedAt := m.EditedAt.Time
		v.EditedAt = &editedAt
	}

	for _, r := range m.Reactions {
		v.Reactions[r.Emoji] = append(v.Reactions[r.Emoji], r.UserID)
	}
	for _, rc := range m.Receipts {
		if rc.DeliveredAt.Valid {
			v.DeliveredTo = append(v.DeliveredTo, rc.UserID)
		}
		if rc.ReadAt.Valid {
			v.ReadBy = append(v.ReadBy, rc.UserID)
		}
	}

	return v
}
