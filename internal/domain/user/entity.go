package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Presence statuses. The ledger only ever writes one of these.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// ValidStatus reports whether s is a known presence status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// User represents the users table. Identity and profile fields are owned by
// the account service; this module reads them and writes presence and
// engagement fields only.
type User struct {
	ID               uuid.UUID
	DisplayName      string
	AvatarURL        string
	Status           string
	LastSeenAt       sql.NullTime
	MessagesSent     int64
	ExperiencePoints int64
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (User) TableName() string {
	return "users"
}
