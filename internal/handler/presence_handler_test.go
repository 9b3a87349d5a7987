package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peerlearn-chat/internal/domain/user"
	"peerlearn-chat/internal/transport/httpdto"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeUserRepo struct {
	user user.User
	err  error
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	if f.err != nil {
		return user.User{}, f.err
	}
	return f.user, nil
}

func (f *fakeUserRepo) UpdatePresence(ctx context.Context, userID uuid.UUID, status string, lastSeen time.Time) error {
	return nil
}

func (f *fakeUserRepo) IncrementEngagement(ctx context.Context, userID uuid.UUID, messages, xp int64) error {
	return nil
}

func servePresence(t *testing.T, h *PresenceHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/users/:id/presence", h.Get)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// Without Redis the handler serves presence from the persisted user row.
func TestPresenceFallsBackToUserRow(t *testing.T) {
	userID := uuid.New()
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeUserRepo{user: user.User{
		ID:         userID,
		Status:     user.StatusOffline,
		LastSeenAt: sql.NullTime{Time: seen, Valid: true},
	}}
	h := NewPresenceHandler(nil, repo, nil)

	w := servePresence(t, h, "/v1/users/"+userID.String()+"/presence")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp httpdto.Response[httpdto.PresenceResponse]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Data.UserID != userID.String() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Data.Status != user.StatusOffline {
		t.Fatalf("expected offline, got %q", resp.Data.Status)
	}
	if resp.Data.LastSeen != seen.Format(time.RFC3339) {
		t.Fatalf("expected last seen %s, got %q", seen.Format(time.RFC3339), resp.Data.LastSeen)
	}
}

func TestPresenceUnknownUserNotFound(t *testing.T) {
	h := NewPresenceHandler(nil, &fakeUserRepo{err: peerlearn_errors.ErrNotFound}, nil)

	w := servePresence(t, h, "/v1/users/"+uuid.NewString()+"/presence")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPresenceInvalidIDRejected(t *testing.T) {
	h := NewPresenceHandler(nil, &fakeUserRepo{}, nil)

	w := servePresence(t, h, "/v1/users/not-a-uuid/presence")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
