// Package voicetoken mints short-lived tokens for voice sessions.
package voicetoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meal-plan-coordinator/internal/fallback"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Audience is the aud claim of every minted token.
	Audience = "voice"
	// TTL is the lifetime of a minted token.
	TTL = 5 * time.Minute

	attemptTimeout = 2 * time.Second
)

// Mode tells the client where the voice session runs.
type Mode string

const (
	ModeServer Mode = "server"
	// ModeClient is the degraded mode used when no credential can sign.
	ModeClient Mode = "client"
)

// Grant is the response to a token request.
type Grant struct {
	Mode       Mode       `json:"mode"`
	Token      string     `json:"token,omitempty"`
	Credential string     `json:"credential,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Minter signs tokens with the scoped key, falling back to the master key.
type Minter struct {
	credentials []credential
	now         func() time.Time
}

type credential struct {
	name string
	key  []byte
}

// NewMinter creates a minter. Empty keys are skipped.
func NewMinter(scopedKey, masterKey string) *Minter {
	m := &Minter{now: time.Now}
	if scopedKey != "" {
		m.credentials = append(m.credentials, credential{name: "scoped", key: []byte(scopedKey)})
	}
	if masterKey != "" {
		m.credentials = append(m.credentials, credential{name: "master", key: []byte(masterKey)})
	}
	return m
}

// Mint returns a signed token for sessionID. When every credential fails
// the grant falls back to client mode instead of returning an error.
func (m *Minter) Mint(ctx context.Context, sessionID string) (Grant, error) {
	if sessionID == "" {
		return Grant{}, fmt.Errorf("session id is required")
	}

	attempts := make([]fallback.Attempt[Grant], 0, len(m.credentials))
	for _, c := range m.credentials {
		c := c
		attempts = append(attempts, fallback.Attempt[Grant]{
			Name:    c.name,
			Timeout: attemptTimeout,
			Run: func(ctx context.Context) (Grant, error) {
				return m.sign(c, sessionID)
			},
		})
	}
	if len(attempts) == 0 {
		return Grant{Mode: ModeClient}, nil
	}

	out, err := fallback.Run(ctx, attempts...)
	if errors.Is(err, fallback.ErrExhausted) {
		slog.Warn("voice token minting degraded to client mode", "error", err)
		return Grant{Mode: ModeClient}, nil
	}
	if err != nil {
		return Grant{}, err
	}
	if len(out.Failures) > 0 {
		slog.Info("voice token minted with fallback credential", "credential", out.Source)
	}
	return out.Value, nil
}

func (m *Minter) sign(c credential, sessionID string) (Grant, error) {
	now := m.now()
	exp := now.Add(TTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sessionID,
		"aud": Audience,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	token.Header["kid"] = c.name

	signed, err := token.SignedString(c.key)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to sign with %s credential: %w", c.name, err)
	}
	return Grant{Mode: ModeServer, Token: signed, Credential: c.name, ExpiresAt: &exp}, nil
}
