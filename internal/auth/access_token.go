package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// AccessTokenPrefix is the lexical prefix every access token plaintext
// carries, so it's identifiable at a glance in logs or leaked-credential
// scans without decoding anything.
const AccessTokenPrefix = "lt_"

// accessTokenRandomBytes is the amount of entropy backing each token
// (256 bits), which is also why access tokens are hashed with plain
// SHA-256 rather than a memory-hard function: the input already carries
// more entropy than an offline attacker can brute force.
const accessTokenRandomBytes = 32

const accessTokenSlidingWindow = 60 * 24 * time.Hour

// generateAccessTokenPlaintext returns the "lt_" + 64 hex char plaintext
// and its SHA-256 hash (hex-encoded). Only the hash is ever persisted.
func generateAccessTokenPlaintext() (plaintext, hash string, err error) {
	buf := make([]byte, accessTokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", trace.Wrap(err)
	}
	plaintext = AccessTokenPrefix + hex.EncodeToString(buf)
	hash = HashAccessToken(plaintext)
	return plaintext, hash, nil
}

// HashAccessToken returns the at-rest SHA-256 hex digest of a plaintext
// access token. hash(t) = hash(t) for all t: this is a pure function.
func HashAccessToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// IsAccessTokenFormatValid reports whether s has the lexical shape of an
// access token: "lt_" followed by exactly 64 hex characters (either
// case).
func IsAccessTokenFormatValid(s string) bool {
	if !strings.HasPrefix(s, AccessTokenPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, AccessTokenPrefix)
	if len(rest) != 64 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// IssueAccessTokenParams describes a new access token request.
type IssueAccessTokenParams struct {
	UserID      uuid.UUID
	Label       string
	SessionType SessionType
	IPAddress   string
	UserAgent   string
	GeoCity     string
	GeoCountry  string
}

// IssueAccessToken creates and persists a new access token, returning its
// plaintext (which is never stored) alongside the record.
func (s *Service) IssueAccessToken(ctx context.Context, p IssueAccessTokenParams) (plaintext string, token *AccessToken, err error) {
	plaintext, hash, err := generateAccessTokenPlaintext()
	if err != nil {
		return "", nil, trace.Wrap(err)
	}

	now := s.clock.Now().UTC()
	token = &AccessToken{
		ID:          uuid.New(),
		UserID:      p.UserID,
		TokenHash:   hash,
		Label:       p.Label,
		SessionType: p.SessionType,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.accessTokenTTL()),
		IPAddress:   p.IPAddress,
		UserAgent:   p.UserAgent,
		GeoCity:     p.GeoCity,
		GeoCountry:  p.GeoCountry,
	}
	if err := s.repo.CreateAccessToken(ctx, token); err != nil {
		return "", nil, trace.Wrap(err)
	}
	return plaintext, token, nil
}

// AuthenticateMetadata carries the caller-observed request metadata that
// gets recorded on every successful use of an access token.
type AuthenticateMetadata struct {
	IPAddress string
	UserAgent string
}

// AuthenticateAccessToken looks up a plaintext token, validates it, and —
// on success — slides its expiry forward and updates its metadata. The
// sliding expiry never shortens ExpiresAt: each successful use pushes it
// to now+60d regardless of how much of the previous window remained.
func (s *Service) AuthenticateAccessToken(ctx context.Context, plaintext string, meta AuthenticateMetadata) (*AccessToken, error) {
	if !IsAccessTokenFormatValid(plaintext) {
		return nil, trace.Wrap(ErrInvalidToken)
	}

	hash := HashAccessToken(plaintext)
	token, err := s.repo.GetAccessTokenByHash(ctx, hash)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if token == nil {
		return nil, trace.Wrap(ErrInvalidToken)
	}

	now := s.clock.Now().UTC()
	if token.RevokedAt != nil {
		return nil, trace.Wrap(ErrTokenRevoked)
	}
	if now.After(token.ExpiresAt) {
		return nil, trace.Wrap(ErrTokenExpired)
	}

	token.LastUsedAt = &now
	token.ExpiresAt = now.Add(s.accessTokenTTL())
	if meta.IPAddress != "" {
		token.IPAddress = meta.IPAddress
	}
	if meta.UserAgent != "" {
		token.UserAgent = meta.UserAgent
	}
	if err := s.repo.UpdateAccessToken(ctx, token); err != nil {
		return nil, trace.Wrap(err)
	}
	return token, nil
}

// RevokeAccessToken sets RevokedAt. Revoked tokens fail authentication
// but are not deleted; a retention job purges them later.
func (s *Service) RevokeAccessToken(ctx context.Context, tokenID uuid.UUID, token *AccessToken) error {
	now := s.clock.Now().UTC()
	token.RevokedAt = &now
	return trace.Wrap(s.repo.UpdateAccessToken(ctx, token))
}

func (s *Service) accessTokenTTL() time.Duration {
	if s.accessTokenTTLOverride > 0 {
		return s.accessTokenTTLOverride
	}
	return accessTokenSlidingWindow
}
