package repository

import (
	"context"
	"errors"
	"time"

	"peerlearn-chat/internal/domain/user"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, peerlearn_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *PostgresUserRepository) UpdatePresence(ctx context.Context, userID uuid.UUID, status string, lastSeen time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":       status,
			"last_seen_at": lastSeen,
			"updated_at":   lastSeen,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return peerlearn_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) IncrementEngagement(ctx context.Context, userID uuid.UUID, messages, xp int64) error {
	res := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"messages_sent":     gorm.Expr("messages_sent + ?", messages),
			"experience_points": gorm.Expr("experience_points + ?", xp),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return peerlearn_errors.ErrNotFound
	}
	return nil
}
