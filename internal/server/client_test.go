package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestClientIdleTracking(t *testing.T) {
	c := NewClient(nil, nil, uuid.New(), "", "c", NewWebSocketLogger())

	if idle := c.idleFor(); idle > time.Second {
		t.Fatalf("fresh client should not be idle, got %s", idle)
	}

	atomic.StoreInt64(&c.lastActivity, time.Now().Add(-3*pongWait).UnixNano())
	if idle := c.idleFor(); idle <= pongWait*2 {
		t.Fatalf("stale activity should read as idle, got %s", idle)
	}

	c.markActivity()
	if idle := c.idleFor(); idle > time.Second {
		t.Fatalf("markActivity should reset idleness, got %s", idle)
	}
}

// The read pump marks activity while the write pump polls it; both sides go
// through atomics so the race detector stays quiet.
func TestClientActivityConcurrentAccess(t *testing.T) {
	c := NewClient(nil, nil, uuid.New(), "", "c", NewWebSocketLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.markActivity()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if c.idleFor() < 0 {
					t.Error("idle duration went negative")
					return
				}
			}
		}()
	}
	wg.Wait()
}
