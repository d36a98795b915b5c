// Package auth implements Loom's authentication, session, and token
// management: access tokens, magic links, device codes, OAuth state, and
// WebSocket handshake tokens, plus username validation.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// SessionType distinguishes the client surface a session was issued to.
type SessionType string

const (
	SessionTypeCLI    SessionType = "cli"
	SessionTypeVSCode SessionType = "vs_code"
)

// AccessToken is a long-lived, sliding-expiry bearer credential. Only
// TokenHash is ever persisted; the plaintext exists solely at creation
// time, returned to the caller and never stored.
type AccessToken struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	TokenHash   string
	Label       string
	SessionType SessionType
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	ExpiresAt   time.Time
	IPAddress   string
	UserAgent   string
	GeoCity     string
	GeoCountry  string
	RevokedAt   *time.Time
}

// IsValid reports whether the token is neither revoked nor expired as of
// now.
func (t *AccessToken) IsValid(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return !now.After(t.ExpiresAt)
}

// MagicLink is a short-lived, single-use email-delivered login token.
// TokenHash is Argon2id, used as defense-in-depth on top of the token's
// own 256 bits of entropy (the entropy argument that justifies plain
// SHA-256 for access tokens doesn't carry over here: a magic-link hash
// sits in the same database row an attacker who dumps the table would
// read alongside the recipient's email address, so the extra
// memory-hard cost matters more than it does for the access-token case).
type MagicLink struct {
	ID        uuid.UUID
	Email     string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsValid reports whether the magic link is unconsumed and unexpired.
func (m *MagicLink) IsValid(now time.Time) bool {
	if m.UsedAt != nil {
		return false
	}
	return !now.After(m.ExpiresAt)
}

// DeviceCodeStatus is the lifecycle state of a device-code flow.
type DeviceCodeStatus string

const (
	DeviceCodePending   DeviceCodeStatus = "pending"
	DeviceCodeCompleted DeviceCodeStatus = "completed"
	DeviceCodeExpired   DeviceCodeStatus = "expired"
)

// DeviceCode backs the device-code authentication flow: a limited-input
// device polls DeviceCode while the user authorizes using UserCode on a
// separate, full-featured device.
type DeviceCode struct {
	DeviceCode uuid.UUID
	UserCode   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Completed  bool
	UserID     *uuid.UUID
	// Consumed is set once Poll has successfully exchanged a completed
	// code for an access token, enforcing the "exactly once" guarantee.
	Consumed bool
}

// OAuthStateEntry is a short-lived CSRF token bound to one OAuth redirect.
type OAuthStateEntry struct {
	State       string
	Provider    string
	Nonce       string
	RedirectURL string
	CreatedAt   time.Time
}

// WSToken is a single-use, 30-second WebSocket handshake token.
type WSToken struct {
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsValid reports whether the WebSocket token is unconsumed and unexpired.
func (w *WSToken) IsValid(now time.Time) bool {
	if w.UsedAt != nil {
		return false
	}
	return !now.After(w.ExpiresAt)
}

// User is a Loom account. Soft-deleted users (DeletedAt != nil) keep
// their row but are excluded from access checks by callers.
type User struct {
	ID             uuid.UUID
	DisplayName    string
	Username       string
	PrimaryEmail   string
	AvatarURL      string
	EmailVisible   bool
	IsSystemAdmin  bool
	IsSupport      bool
	IsAuditor      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	Locale         string
}
