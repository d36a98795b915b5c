package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const oauthStateDefaultTTL = 10 * time.Minute

// OAuthStateStore is a purely in-memory, process-local map of pending
// OAuth CSRF states. Writes dominate reads here (every store is
// immediately followed by exactly one consume), so it's guarded by a
// plain sync.Mutex rather than the RWMutex used by the read-heavy flags
// broadcaster (spec.md §5).
type OAuthStateStore struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	byID  map[string]OAuthStateEntry
}

// NewOAuthStateStore constructs an empty store.
func NewOAuthStateStore(clock clockwork.Clock) *OAuthStateStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OAuthStateStore{
		clock: clock,
		ttl:   oauthStateDefaultTTL,
		byID:  make(map[string]OAuthStateEntry),
	}
}

// WithTTL overrides the default 10-minute expiry.
func (s *OAuthStateStore) WithTTL(ttl time.Duration) *OAuthStateStore {
	s.ttl = ttl
	return s
}

// Store inserts a new state entry with creation time now. A state value
// is generated by the caller (typically uuid.NewString()); redirectURL is
// sanitized before storage so every downstream read already sees a safe
// value.
func (s *OAuthStateStore) Store(state, provider, nonce, redirectURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[state] = OAuthStateEntry{
		State:       state,
		Provider:    provider,
		Nonce:       nonce,
		RedirectURL: SanitizeRedirect(&redirectURL),
		CreatedAt:   s.clock.Now().UTC(),
	}
}

// ValidateAndConsume removes the entry for state unconditionally — even
// on a provider mismatch or a miss — so that a probing attacker can't
// distinguish "wrong provider" from "never existed" by retrying. It
// returns the entry only when it existed, was unexpired, and its
// provider matches expectedProvider.
func (s *OAuthStateStore) ValidateAndConsume(state, expectedProvider string) (*OAuthStateEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[state]
	delete(s.byID, state)
	if !ok {
		return nil, false
	}
	if s.clock.Now().UTC().After(entry.CreatedAt.Add(s.ttl)) {
		return nil, false
	}
	if entry.Provider != expectedProvider {
		return nil, false
	}
	return &entry, true
}

// CleanupExpired removes stale entries and returns how many were purged.
func (s *OAuthStateStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	removed := 0
	for state, entry := range s.byID {
		if now.After(entry.CreatedAt.Add(s.ttl)) {
			delete(s.byID, state)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently tracked, for tests and
// metrics.
func (s *OAuthStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// NewState returns a fresh random state value suitable for Store.
func NewState() string {
	return uuid.NewString()
}

// SanitizeRedirect enforces the single redirect-safety predicate used at
// every call site that accepts a post-auth redirect (spec.md §6, §9): the
// value must start with "/" and must not start with "//" (which browsers
// treat as protocol-relative, i.e. an open redirect to another host).
// Anything else, including a nil input, becomes "/".
func SanitizeRedirect(raw *string) string {
	if raw == nil {
		return "/"
	}
	v := *raw
	if !strings.HasPrefix(v, "/") {
		return "/"
	}
	if strings.HasPrefix(v, "//") {
		return "/"
	}
	return v
}
