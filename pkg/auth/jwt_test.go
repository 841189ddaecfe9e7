package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "this-is-a-test-secret-of-32-chars!!"

func newTestManager(t *testing.T, ttl time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, ttl)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	return m
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTManager("short", time.Hour); !errors.Is(err, ErrShortSecret) {
		t.Errorf("expected ErrShortSecret, got %v", err)
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.GenerateToken("user-1", "analyst1", RoleAnalyst)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	claims, err := m.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "analyst1" || claims.Role != RoleAnalyst {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.After(time.Now()) {
		t.Error("token should not be expired yet")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	m := newTestManager(t, time.Hour)

	tests := []struct {
		name     string
		userID   string
		username string
		role     string
		wantErr  error
	}{
		{"empty user id", "", "u", RoleViewer, ErrEmptyUserID},
		{"empty username", "id", "", RoleViewer, ErrEmptyUsername},
		{"empty role", "id", "u", "", ErrEmptyRole},
		{"unknown role", "id", "u", "superuser", ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.GenerateToken(tt.userID, tt.username, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := newTestManager(t, time.Hour)

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := m.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute)

	token, err := m.GenerateToken("user-1", "analyst1", RoleAnalyst)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := m.ValidateToken(context.Background(), token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m1 := newTestManager(t, time.Hour)
	m2, err := NewJWTManager(strings.Repeat("x", 32), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := m1.GenerateToken("user-1", "analyst1", RoleAnalyst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token signed with a different secret should be rejected")
	}
}

func TestTokenDuration(t *testing.T) {
	m := newTestManager(t, 45*time.Minute)
	if m.TokenDuration() != 45*time.Minute {
		t.Errorf("TokenDuration = %v", m.TokenDuration())
	}
}
