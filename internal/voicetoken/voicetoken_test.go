package voicetoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func parse(t *testing.T, token string, key []byte) *jwt.Token {
	t.Helper()
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithAudience(Audience), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	return parsed
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("ScopedKeyPreferred", func(t *testing.T) {
		g, err := NewMinter("scoped-secret", "master-secret").Mint(ctx, "session-1")
		if err != nil {
			t.Fatalf("Mint failed: %v", err)
		}
		if g.Mode != ModeServer || g.Credential != "scoped" {
			t.Errorf("Expected server mode with scoped credential, got %+v", g)
		}
		tok := parse(t, g.Token, []byte("scoped-secret"))
		if tok.Header["kid"] != "scoped" {
			t.Errorf("Expected kid scoped, got %v", tok.Header["kid"])
		}
		if sub, _ := tok.Claims.GetSubject(); sub != "session-1" {
			t.Errorf("Expected subject session-1, got %s", sub)
		}
		if g.ExpiresAt == nil || time.Until(*g.ExpiresAt) > TTL {
			t.Errorf("Expected expiry within %v, got %v", TTL, g.ExpiresAt)
		}
	})

	t.Run("MasterKeyWhenNoScopedKey", func(t *testing.T) {
		g, err := NewMinter("", "master-secret").Mint(ctx, "session-1")
		if err != nil {
			t.Fatalf("Mint failed: %v", err)
		}
		if g.Credential != "master" {
			t.Errorf("Expected master credential, got %+v", g)
		}
		parse(t, g.Token, []byte("master-secret"))
	})

	t.Run("ClientModeWithoutKeys", func(t *testing.T) {
		g, err := NewMinter("", "").Mint(ctx, "session-1")
		if err != nil {
			t.Fatalf("Expected degraded grant, got error %v", err)
		}
		if g.Mode != ModeClient || g.Token != "" {
			t.Errorf("Expected client mode without token, got %+v", g)
		}
	})

	t.Run("SessionRequired", func(t *testing.T) {
		if _, err := NewMinter("k", "").Mint(ctx, ""); err == nil {
			t.Error("Expected error for empty session id")
		}
	})

	t.Run("ExpiredTokenRejected", func(t *testing.T) {
		m := NewMinter("scoped-secret", "")
		m.now = func() time.Time { return time.Now().Add(-time.Hour) }
		g, _ := m.Mint(ctx, "session-1")
		_, err := jwt.Parse(g.Token, func(*jwt.Token) (any, error) { return []byte("scoped-secret"), nil })
		if err == nil {
			t.Error("Expected an expired token to fail verification")
		}
	})
}
