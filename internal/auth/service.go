package auth

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Service wires the token-family operations against their injected
// collaborators: a clock (for testability), the session repository, and
// an email sender for the magic-link flow.
type Service struct {
	clock  clockwork.Clock
	repo   SessionRepository
	emails EmailSender

	// accessTokenTTLOverride lets callers honor config.AuthConfig's
	// configurable TTL instead of the spec's 60-day default; zero means
	// "use the default".
	accessTokenTTLOverride time.Duration
	magicLinkTTLOverride   time.Duration
	deviceCodeTTLOverride  time.Duration
	wsTokenTTLOverride     time.Duration
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithClock overrides the clock used for expiry comparisons; tests pass
// clockwork.NewFakeClock().
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithAccessTokenTTL overrides the sliding-expiry window.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(s *Service) { s.accessTokenTTLOverride = d }
}

// WithMagicLinkTTL overrides the magic-link expiry window.
func WithMagicLinkTTL(d time.Duration) Option {
	return func(s *Service) { s.magicLinkTTLOverride = d }
}

// WithDeviceCodeTTL overrides the device-code expiry window.
func WithDeviceCodeTTL(d time.Duration) Option {
	return func(s *Service) { s.deviceCodeTTLOverride = d }
}

// WithWSTokenTTL overrides the WebSocket-token expiry window.
func WithWSTokenTTL(d time.Duration) Option {
	return func(s *Service) { s.wsTokenTTLOverride = d }
}

// NewService constructs a token-management Service.
func NewService(repo SessionRepository, emails EmailSender, opts ...Option) *Service {
	s := &Service{
		clock:  clockwork.NewRealClock(),
		repo:   repo,
		emails: emails,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
