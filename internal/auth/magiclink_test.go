package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRequestAndConsumeMagicLink(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, repo := newTestService(clock)
	ctx := context.Background()

	require.NoError(t, svc.RequestMagicLink(ctx, "user@example.com", "https://app.loom.dev/auth/verify?token="))

	var link *MagicLink
	for _, m := range repo.magicLinks {
		link = m
	}
	require.NotNil(t, link)

	sentURL := svc.emails.(*fakeEmailSender).sent[0].URL
	token := sentURL[len("https://app.loom.dev/auth/verify?token="):]

	require.NoError(t, svc.VerifyAndConsumeMagicLink(ctx, link, token))
	require.NotNil(t, link.UsedAt)

	err := svc.VerifyAndConsumeMagicLink(ctx, link, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMagicLinkExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, repo := newTestService(clock)
	ctx := context.Background()

	require.NoError(t, svc.RequestMagicLink(ctx, "user@example.com", "https://app.loom.dev/auth/verify?token="))
	var link *MagicLink
	for _, m := range repo.magicLinks {
		link = m
	}
	sentURL := svc.emails.(*fakeEmailSender).sent[0].URL
	token := sentURL[len("https://app.loom.dev/auth/verify?token="):]

	clock.Advance(11 * time.Minute)
	err := svc.VerifyAndConsumeMagicLink(ctx, link, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestMagicLinkWrongToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, repo := newTestService(clock)
	ctx := context.Background()

	require.NoError(t, svc.RequestMagicLink(ctx, "user@example.com", "https://app.loom.dev/auth/verify?token="))
	var link *MagicLink
	for _, m := range repo.magicLinks {
		link = m
	}

	err := svc.VerifyAndConsumeMagicLink(ctx, link, "wrong-token-value")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestMagicLinkInvalidatesPrior(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, repo := newTestService(clock)
	ctx := context.Background()

	require.NoError(t, svc.RequestMagicLink(ctx, "user@example.com", "https://app.loom.dev/auth/verify?token="))
	require.NoError(t, svc.RequestMagicLink(ctx, "user@example.com", "https://app.loom.dev/auth/verify?token="))

	usedCount := 0
	for _, m := range repo.magicLinks {
		if m.UsedAt != nil {
			usedCount++
		}
	}
	require.Equal(t, 1, usedCount)
}
