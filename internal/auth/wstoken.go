package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gravitational/trace"
)

// WSTokenPrefix is the lexical prefix of every WebSocket token plaintext.
const WSTokenPrefix = "ws_"

const wsTokenRandomBytes = 32
const wsTokenDefaultTTL = 30 * time.Second

// IsWSTokenFormatValid reports whether s has the lexical shape of a
// WebSocket token: "ws_" followed by 64 hex characters.
func IsWSTokenFormatValid(s string) bool {
	if !strings.HasPrefix(s, WSTokenPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, WSTokenPrefix)
	if len(rest) != 64 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// HashWSToken returns the at-rest SHA-256 hex digest of a plaintext
// WebSocket token.
func HashWSToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func (s *Service) wsTokenTTL() time.Duration {
	if s.wsTokenTTLOverride > 0 {
		return s.wsTokenTTLOverride
	}
	return wsTokenDefaultTTL
}

// IssueWSToken mints a new 30-second, single-use WebSocket token.
func (s *Service) IssueWSToken(ctx context.Context) (plaintext string, err error) {
	buf := make([]byte, wsTokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", trace.Wrap(err)
	}
	plaintext = WSTokenPrefix + hex.EncodeToString(buf)
	hash := HashWSToken(plaintext)

	now := s.clock.Now().UTC()
	token := &WSToken{
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.wsTokenTTL()),
	}
	if err := s.repo.CreateWSToken(ctx, token); err != nil {
		return "", trace.Wrap(err)
	}
	return plaintext, nil
}

// ConsumeWSToken validates and marks a WebSocket token used. It is
// invoked by the first message on a WebSocket connection that carried
// the token during its handshake.
func (s *Service) ConsumeWSToken(ctx context.Context, plaintext string) error {
	if !IsWSTokenFormatValid(plaintext) {
		return trace.Wrap(ErrInvalidToken)
	}

	hash := HashWSToken(plaintext)
	token, err := s.repo.GetWSTokenByHash(ctx, hash)
	if err != nil {
		return trace.Wrap(err)
	}
	if token == nil {
		return trace.Wrap(ErrInvalidToken)
	}

	now := s.clock.Now().UTC()
	if !token.IsValid(now) {
		if token.UsedAt != nil {
			return trace.Wrap(ErrInvalidToken)
		}
		return trace.Wrap(ErrTokenExpired)
	}

	token.UsedAt = &now
	return trace.Wrap(s.repo.UpdateWSToken(ctx, token))
}
