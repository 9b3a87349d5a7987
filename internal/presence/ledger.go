package presence

import (
	"sync"
	"time"

	"peerlearn-chat/internal/domain/user"

	"github.com/google/uuid"
)

// Entry is a point-in-time snapshot of one user's presence.
type Entry struct {
	Status      string
	LastSeen    time.Time
	Connections int
}

type record struct {
	status      string
	lastSeen    time.Time
	connections int
}

// Ledger tracks live connection counts and status per user. It is owned by
// the hub, constructed at server start, and mutated only through these
// methods; connection counts can never be set directly, so concurrent
// disconnect handlers cannot drive a count below zero.
type Ledger struct {
	mu    sync.Mutex
	users map[uuid.UUID]*record
	clock func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		users: make(map[uuid.UUID]*record),
		clock: time.Now,
	}
}

// Connected increments the user's connection count and reports whether this
// was the first live connection (the 0 -> 1 transition that makes the user
// online).
func (l *Ledger) Connected(userID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok {
		rec = &record{}
		l.users[userID] = rec
	}
	rec.connections++
	rec.lastSeen = l.clock()
	if rec.connections == 1 {
		rec.status = user.StatusOnline
		return true
	}
	return false
}

// Disconnected decrements the user's connection count and reports whether
// this was the last live connection. A user with no recorded connections is
// left untouched.
func (l *Ledger) Disconnected(userID uuid.UUID) (last bool, lastSeen time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok || rec.connections == 0 {
		return false, time.Time{}
	}
	rec.connections--
	rec.lastSeen = l.clock()
	if rec.connections > 0 {
		return false, rec.lastSeen
	}

	lastSeen = rec.lastSeen
	delete(l.users, userID)
	return true, lastSeen
}

// SetExplicit records a user-requested status (online or away). Offline is
// derived from connection counts, never requested, and a user with no live
// connection has no status to change.
func (l *Ledger) SetExplicit(userID uuid.UUID, status string) bool {
	if status != user.StatusOnline && status != user.StatusAway {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok || rec.connections == 0 {
		return false
	}
	rec.status = status
	rec.lastSeen = l.clock()
	return true
}

// Get returns the user's presence entry. Users without live connections
// report offline.
func (l *Ledger) Get(userID uuid.UUID) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.users[userID]
	if !ok {
		return Entry{Status: user.StatusOffline}
	}
	return Entry{
		Status:      rec.status,
		LastSeen:    rec.lastSeen,
		Connections: rec.connections,
	}
}

// OnlineCount returns the number of users with at least one live connection.
func (l *Ledger) OnlineCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
