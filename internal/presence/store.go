package presence

import (
	"context"
	"encoding/json"
	"time"

	"peerlearn-chat/internal/domain/user"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	presenceOnlineSet = "presence:online"
	offlineRetention  = 24 * time.Hour
)

// Status is the durable presence record kept in Redis so other instances
// and HTTP reads can see presence without asking the owning hub.
type Status struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Store mirrors the in-process ledger into Redis.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStore(client *goredis.Client, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

// SetStatus writes the user's status and last-seen. Offline records are kept
// longer so last-seen queries survive the presence TTL.
func (s *Store) SetStatus(ctx context.Context, userID uuid.UUID, status string, lastSeen time.Time) error {
	record := Status{
		UserID:   userID.String(),
		Status:   status,
		LastSeen: lastSeen,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ttl := s.ttl
	if status == user.StatusOffline {
		ttl = offlineRetention
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+record.UserID, data, ttl)
	if status == user.StatusOffline {
		pipe.SRem(ctx, presenceOnlineSet, record.UserID)
	} else {
		pipe.SAdd(ctx, presenceOnlineSet, record.UserID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetStatus returns the stored presence for a user, defaulting to offline
// when nothing is recorded.
func (s *Store) GetStatus(ctx context.Context, userID uuid.UUID) (Status, error) {
	data, err := s.client.Get(ctx, presenceKeyPrefix+userID.String()).Result()
	if err == goredis.Nil {
		return Status{UserID: userID.String(), Status: user.StatusOffline}, nil
	}
	if err != nil {
		return Status{}, err
	}

	var status Status
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// OnlineUsers returns the IDs of users currently marked online.
func (s *Store) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, presenceOnlineSet).Result()
}
