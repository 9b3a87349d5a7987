package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"peerlearn-chat/internal/domain/message"
	"peerlearn-chat/internal/events"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
)

func newReactionServiceForTest(repo *fakeMessageRepo, convs *fakeConvRepo, broadcast *fakeBroadcaster, fixedTime time.Time) *ReactionService {
	svc := NewReactionService(repo, convs, broadcast, nil)
	svc.clock = func() time.Time { return fixedTime }
	return svc
}

func TestAddReactionBroadcasts(t *testing.T) {
	fixedTime := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	msgID := uuid.New()
	convID := uuid.New()
	repo := &fakeMessageRepo{
		byID:               map[uuid.UUID]message.Message{msgID: {ID: msgID, ConversationID: convID}},
		addReactionChanged: true,
	}
	broadcast := &fakeBroadcaster{}
	svc := newReactionServiceForTest(repo, &fakeConvRepo{participant: true}, broadcast, fixedTime)

	reactor := uuid.New()
	if err := svc.Add(context.Background(), reactor, msgID, "🔥"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	if repo.addedReaction == nil || repo.addedReaction.Emoji != "🔥" || repo.addedReaction.UserID != reactor {
		t.Fatalf("reaction not persisted as expected: %+v", repo.addedReaction)
	}
	if !repo.addedReaction.CreatedAt.Equal(fixedTime) {
		t.Fatalf("expected clock timestamp, got %v", repo.addedReaction.CreatedAt)
	}

	env := broadcast.lastEnvelope(t)
	if env.Type != string(events.OutboundReactionAdded) {
		t.Fatalf("expected reaction-added broadcast, got %q", env.Type)
	}
	var payload events.ReactionChangedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ConversationID != convID || payload.MessageID != msgID {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestAddDuplicateReactionNoBroadcast(t *testing.T) {
	msgID := uuid.New()
	repo := &fakeMessageRepo{
		byID:               map[uuid.UUID]message.Message{msgID: {ID: msgID, ConversationID: uuid.New()}},
		addReactionChanged: false,
	}
	broadcast := &fakeBroadcaster{}
	svc := newReactionServiceForTest(repo, &fakeConvRepo{participant: true}, broadcast, time.Now())

	if err := svc.Add(context.Background(), uuid.New(), msgID, "👍"); err != nil {
		t.Fatalf("duplicate add should be a quiet no-op, got %v", err)
	}
	if len(broadcast.calls) != 0 {
		t.Fatal("duplicate reaction must not broadcast")
	}
}

func TestAddReactionToDeletedMessageNotFound(t *testing.T) {
	msgID := uuid.New()
	repo := &fakeMessageRepo{
		byID: map[uuid.UUID]message.Message{msgID: {ID: msgID, DeletedAt: nullTime(time.Now())}},
	}
	svc := newReactionServiceForTest(repo, &fakeConvRepo{participant: true}, &fakeBroadcaster{}, time.Now())

	err := svc.Add(context.Background(), uuid.New(), msgID, "👍")
	if !errors.Is(err, peerlearn_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveAbsentReactionNoBroadcast(t *testing.T) {
	msgID := uuid.New()
	repo := &fakeMessageRepo{
		byID:                  map[uuid.UUID]message.Message{msgID: {ID: msgID}},
		removeReactionChanged: false,
	}
	broadcast := &fakeBroadcaster{}
	svc := newReactionServiceForTest(repo, &fakeConvRepo{participant: true}, broadcast, time.Now())

	if err := svc.Remove(context.Background(), uuid.New(), msgID, "👍"); err != nil {
		t.Fatalf("removing an absent reaction should be a quiet no-op, got %v", err)
	}
	if len(broadcast.calls) != 0 {
		t.Fatal("absent reaction removal must not broadcast")
	}
}

func TestReactionFromNonParticipantForbidden(t *testing.T) {
	msgID := uuid.New()
	repo := &fakeMessageRepo{
		byID: map[uuid.UUID]message.Message{msgID: {ID: msgID}},
	}
	svc := newReactionServiceForTest(repo, &fakeConvRepo{participant: false}, &fakeBroadcaster{}, time.Now())

	err := svc.Add(context.Background(), uuid.New(), msgID, "👍")
	if !errors.Is(err, peerlearn_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestReactionEmptyEmojiInvalid(t *testing.T) {
	svc := newReactionServiceForTest(&fakeMessageRepo{}, &fakeConvRepo{participant: true}, &fakeBroadcaster{}, time.Now())

	err := svc.Add(context.Background(), uuid.New(), uuid.New(), "")
	if !errors.Is(err, peerlearn_errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
