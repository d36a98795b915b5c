package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestIssueAndConsumeWSToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	plaintext, err := svc.IssueWSToken(ctx)
	require.NoError(t, err)
	require.True(t, IsWSTokenFormatValid(plaintext))

	require.NoError(t, svc.ConsumeWSToken(ctx, plaintext))

	err = svc.ConsumeWSToken(ctx, plaintext)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestWSTokenExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	plaintext, err := svc.IssueWSToken(ctx)
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	err = svc.ConsumeWSToken(ctx, plaintext)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestWSTokenInvalidFormat(t *testing.T) {
	svc, _ := newTestService(clockwork.NewFakeClock())
	err := svc.ConsumeWSToken(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}
