package presence

import (
	"testing"
	"time"

	"peerlearn-chat/internal/domain/user"

	"github.com/google/uuid"
)

func TestLedgerRefcountsConnections(t *testing.T) {
	ledger := NewLedger()
	userID := uuid.New()

	if !ledger.Connected(userID) {
		t.Fatal("first connection should report the online transition")
	}
	if ledger.Connected(userID) {
		t.Fatal("second tab must not re-announce online")
	}

	if last, _ := ledger.Disconnected(userID); last {
		t.Fatal("closing one of two tabs must not report offline")
	}
	if entry := ledger.Get(userID); entry.Status != user.StatusOnline {
		t.Fatalf("user with a live tab should stay online, got %q", entry.Status)
	}

	last, lastSeen := ledger.Disconnected(userID)
	if !last {
		t.Fatal("closing the final tab should report offline")
	}
	if lastSeen.IsZero() {
		t.Fatal("offline transition should carry a last-seen timestamp")
	}
	if entry := ledger.Get(userID); entry.Status != user.StatusOffline {
		t.Fatalf("expected offline after last disconnect, got %q", entry.Status)
	}
}

func TestLedgerDisconnectWithoutConnect(t *testing.T) {
	ledger := NewLedger()
	userID := uuid.New()

	if last, _ := ledger.Disconnected(userID); last {
		t.Fatal("disconnect without connect must not report a transition")
	}
	// The count must not go below zero: one connect is still the online
	// transition afterwards.
	if !ledger.Connected(userID) {
		t.Fatal("connect after spurious disconnect should report online")
	}
}

func TestLedgerExplicitStatus(t *testing.T) {
	ledger := NewLedger()
	userID := uuid.New()

	if ledger.SetExplicit(userID, user.StatusAway) {
		t.Fatal("status change without a live connection must be refused")
	}

	ledger.Connected(userID)
	if !ledger.SetExplicit(userID, user.StatusAway) {
		t.Fatal("away should be settable while connected")
	}
	if entry := ledger.Get(userID); entry.Status != user.StatusAway {
		t.Fatalf("expected away, got %q", entry.Status)
	}

	if ledger.SetExplicit(userID, user.StatusOffline) {
		t.Fatal("offline is derived, never requested")
	}
	if ledger.SetExplicit(userID, "invisible") {
		t.Fatal("unknown status must be refused")
	}
}

func TestLedgerOnlineCount(t *testing.T) {
	ledger := NewLedger()
	a, b := uuid.New(), uuid.New()

	ledger.Connected(a)
	ledger.Connected(a)
	ledger.Connected(b)
	if got := ledger.OnlineCount(); got != 2 {
		t.Fatalf("expected 2 online users, got %d", got)
	}

	ledger.Disconnected(a)
	if got := ledger.OnlineCount(); got != 2 {
		t.Fatalf("user with remaining tab still counts, got %d", got)
	}
	ledger.Disconnected(a)
	if got := ledger.OnlineCount(); got != 1 {
		t.Fatalf("expected 1 online user, got %d", got)
	}
}

func TestLedgerClockInjection(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ledger := NewLedger()
	ledger.clock = func() time.Time { return fixed }
	userID := uuid.New()

	ledger.Connected(userID)
	_, lastSeen := ledger.Disconnected(userID)
	if !lastSeen.Equal(fixed) {
		t.Fatalf("expected last-seen %v, got %v", fixed, lastSeen)
	}
}
