package services

import (
	"context"
	"time"

	"peerlearn-chat/internal/repository"
	"peerlearn-chat/pkg/logger"

	"github.com/google/uuid"
)

const xpPerMessage = 10

// EngagementService bumps a user's message count and experience points.
// Increments are deliberately fire-and-forget: a failed counter update must
// never roll back or delay the message that triggered it, so the write runs
// on its own goroutine and failures are only logged.
type EngagementService struct {
	users   repository.UserRepository
	logger  *logger.Logger
	timeout time.Duration
}

func NewEngagementService(users repository.UserRepository, l *logger.Logger) *EngagementService {
	return &EngagementService{
		users:   users,
		logger:  l,
		timeout: 5 * time.Second,
	}
}

func (s *EngagementService) RecordMessageSent(userID uuid.UUID) {
	if s.users == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.users.IncrementEngagement(ctx, userID, 1, xpPerMessage); err != nil {
			if s.logger != nil {
				s.logger.Warnf("engagement update for %s dropped: %s", userID, err)
			}
		}
	}()
}
