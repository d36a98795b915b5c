package auth

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestOAuthStateStoreValidateAndConsume(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewOAuthStateStore(clock)

	state := NewState()
	store.Store(state, "github", "nonce123", "/dashboard")

	entry, ok := store.ValidateAndConsume(state, "github")
	require.True(t, ok)
	require.Equal(t, "/dashboard", entry.RedirectURL)
	require.Equal(t, "nonce123", entry.Nonce)

	// Single-use: second consume of the same state fails.
	_, ok = store.ValidateAndConsume(state, "github")
	require.False(t, ok)
}

func TestOAuthStateStoreProviderMismatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewOAuthStateStore(clock)

	state := NewState()
	store.Store(state, "github", "nonce", "/x")

	_, ok := store.ValidateAndConsume(state, "gitlab")
	require.False(t, ok)

	// Consumed even on mismatch, so a retry with the right provider also fails.
	_, ok = store.ValidateAndConsume(state, "github")
	require.False(t, ok)
}

func TestOAuthStateStoreExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewOAuthStateStore(clock)

	state := NewState()
	store.Store(state, "github", "nonce", "/x")

	clock.Advance(11 * time.Minute)
	_, ok := store.ValidateAndConsume(state, "github")
	require.False(t, ok)
}

func TestOAuthStateStoreCleanupExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewOAuthStateStore(clock)

	store.Store(NewState(), "github", "n1", "/a")
	store.Store(NewState(), "github", "n2", "/b")
	require.Equal(t, 2, store.Len())

	clock.Advance(11 * time.Minute)
	removed := store.CleanupExpired()
	require.Equal(t, 2, removed)
	require.Equal(t, 0, store.Len())
}

func TestSanitizeRedirect(t *testing.T) {
	ok := "/x"
	evil := "//evil.com"
	absolute := "https://evil.com/phish"

	require.Equal(t, "/x", SanitizeRedirect(&ok))
	require.Equal(t, "/", SanitizeRedirect(&evil))
	require.Equal(t, "/", SanitizeRedirect(&absolute))
	require.Equal(t, "/", SanitizeRedirect(nil))
}
