package services

import (
	"errors"
	"testing"

	"peerlearn-chat/config"
	peerlearn_errors "peerlearn-chat/pkg/errors"

	"github.com/google/uuid"
)

func TestParseAccessTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiryMin: 15})

	userID := uuid.New()
	token, err := svc.NewAccessToken(userID)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	claims, err := svc.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != userID.String() {
		t.Fatalf("expected subject %s, got %q", userID, claims.UserID)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	minter := NewAuthService(&config.Config{JWTSecret: "secret-a", JWTExpiryMin: 15})
	verifier := NewAuthService(&config.Config{JWTSecret: "secret-b", JWTExpiryMin: 15})

	token, err := minter.NewAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	_, err = verifier.ParseAccessToken(token)
	if !errors.Is(err, peerlearn_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestParseAccessTokenEmpty(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiryMin: 15})

	_, err := svc.ParseAccessToken("")
	if !errors.Is(err, peerlearn_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestParseAccessTokenGarbage(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiryMin: 15})

	_, err := svc.ParseAccessToken("not.a.token")
	if !errors.Is(err, peerlearn_errors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
