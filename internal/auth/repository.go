package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRepository is the persistence collaborator for every token
// family except OAuth state (which is purely in-memory per spec.md
// §4.2). Only the interface is contracted here — schema and SQL are a
// database-layer concern outside this module's scope.
type SessionRepository interface {
	CreateAccessToken(ctx context.Context, t *AccessToken) error
	GetAccessTokenByHash(ctx context.Context, hash string) (*AccessToken, error)
	UpdateAccessToken(ctx context.Context, t *AccessToken) error
	ListAccessTokensByUser(ctx context.Context, userID uuid.UUID) ([]*AccessToken, error)
	// DeleteAccessTokensExpiredBefore removes tokens whose ExpiresAt is
	// strictly before cutoff. It backs the access-token retention job
	// implied but not scheduled by the source (spec.md §9 open questions).
	DeleteAccessTokensExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)

	CreateMagicLink(ctx context.Context, m *MagicLink) error
	GetMagicLinkByHash(ctx context.Context, hash string) (*MagicLink, error)
	InvalidateMagicLinksForEmail(ctx context.Context, email string) error
	UpdateMagicLink(ctx context.Context, m *MagicLink) error

	CreateDeviceCode(ctx context.Context, d *DeviceCode) error
	GetDeviceCodeByDeviceCode(ctx context.Context, deviceCode uuid.UUID) (*DeviceCode, error)
	GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)
	UpdateDeviceCode(ctx context.Context, d *DeviceCode) error

	CreateWSToken(ctx context.Context, w *WSToken) error
	GetWSTokenByHash(ctx context.Context, hash string) (*WSToken, error)
	UpdateWSToken(ctx context.Context, w *WSToken) error

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

// EmailSender delivers the magic-link email. The SMTP protocol details
// are a collaborator outside this module's scope (spec.md §1 non-goals).
type EmailSender interface {
	SendMagicLink(ctx context.Context, email, url string) error
}
