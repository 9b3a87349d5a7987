package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"peerlearn-chat/internal/domain/conversation"
	"peerlearn-chat/internal/domain/message"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		err := tx.Raw(`
			INSERT INTO conversation_sequences (conversation_id, last_sequence, updated_at)
			VALUES (?, 1, ?)
			ON CONFLICT (conversation_id)
			DO UPDATE SET last_sequence = conversation_sequences.last_sequence + 1,
			              updated_at = EXCLUDED.updated_at
			RETURNING last_sequence`,
			m.ConversationID, m.CreatedAt).Scan(&seq).Error
		if err != nil {
			return err
		}
		m.SeqID = seq

		if err := tx.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return peerlearn_errors.ErrAlreadyExists
			}
			return err
		}

		return tx.Model(&conversation.Conversation{}).
			Where("id = ?", m.ConversationID).
			Update("updated_at", m.CreatedAt).Error
	})
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("Receipts").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, peerlearn_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return peerlearn_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", deletedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return peerlearn_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) GetConversationMessages(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	var messages []message.Message
	q := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("Receipts").
		Where("conversation_id = ?", conversationID)

	if beforeSeq > 0 {
		q = q.Where("seq_id < ?", beforeSeq)
	}

	err := q.Order("seq_id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) AddReaction(ctx context.Context, reaction *message.Reaction) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reaction)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresMessageRepository) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	res := r.db.WithContext(ctx).
		Delete(&message.Reaction{}, "message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresMessageRepository) MarkDelivered(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	return r.markReceipts(ctx, conversationID, messageIDs, userID, at, "delivered_at")
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	return r.markReceipts(ctx, conversationID, messageIDs, userID, at, "read_at")
}

// markReceipts fills the named receipt column where it is still NULL. A
// column is set at most once per (message, user), which keeps the sets
// monotonic and makes repeated acknowledgements no-ops.
func (r *PostgresMessageRepository) markReceipts(ctx context.Context, conversationID uuid.UUID, messageIDs []uuid.UUID, userID uuid.UUID, at time.Time, column string) ([]uuid.UUID, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	var changed []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var valid []uuid.UUID
		if err := tx.Model(&message.Message{}).
			Where("conversation_id = ? AND id IN ?", conversationID, messageIDs).
			Pluck("id", &valid).Error; err != nil {
			return err
		}

		for _, msgID := range valid {
			res := tx.Model(&message.Receipt{}).
				Where("message_id = ? AND user_id = ? AND "+column+" IS NULL", msgID, userID).
				Updates(map[string]interface{}{
					column:       at,
					"updated_at": at,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				changed = append(changed, msgID)
				continue
			}

			receipt := &message.Receipt{
				MessageID: msgID,
				UserID:    userID,
				UpdatedAt: at,
			}
			if column == "delivered_at" {
				receipt.DeliveredAt = toNullTime(at)
			} else {
				receipt.ReadAt = toNullTime(at)
			}
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(receipt)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				changed = append(changed, msgID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
