package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestService(clock clockwork.Clock) (*Service, *fakeRepository) {
	repo := newFakeRepository()
	svc := NewService(repo, &fakeEmailSender{}, WithClock(clock))
	return svc, repo
}

func TestIssueAndAuthenticateAccessToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()
	userID := uuid.New()

	plaintext, token, err := svc.IssueAccessToken(ctx, IssueAccessTokenParams{
		UserID: userID,
		Label:  "test",
	})
	require.NoError(t, err)
	require.True(t, IsAccessTokenFormatValid(plaintext))
	require.Equal(t, HashAccessToken(plaintext), token.TokenHash)

	got, err := svc.AuthenticateAccessToken(ctx, plaintext, AuthenticateMetadata{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, "10.0.0.1", got.IPAddress)
}

func TestAccessTokenSlidingExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	plaintext, token, err := svc.IssueAccessToken(ctx, IssueAccessTokenParams{UserID: uuid.New()})
	require.NoError(t, err)
	originalExpiry := token.ExpiresAt

	clock.Advance(59 * 24 * time.Hour)
	got, err := svc.AuthenticateAccessToken(ctx, plaintext, AuthenticateMetadata{})
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.After(originalExpiry))
}

func TestAccessTokenExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	plaintext, _, err := svc.IssueAccessToken(ctx, IssueAccessTokenParams{UserID: uuid.New()})
	require.NoError(t, err)

	clock.Advance(61 * 24 * time.Hour)
	_, err = svc.AuthenticateAccessToken(ctx, plaintext, AuthenticateMetadata{})
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenRevoked(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	plaintext, token, err := svc.IssueAccessToken(ctx, IssueAccessTokenParams{UserID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAccessToken(ctx, token.ID, token))

	_, err = svc.AuthenticateAccessToken(ctx, plaintext, AuthenticateMetadata{})
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestAccessTokenInvalidFormat(t *testing.T) {
	svc, _ := newTestService(clockwork.NewFakeClock())
	_, err := svc.AuthenticateAccessToken(context.Background(), "not-a-token", AuthenticateMetadata{})
	require.ErrorIs(t, err, ErrInvalidToken)
}
