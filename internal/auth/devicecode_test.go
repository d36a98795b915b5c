package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestDeviceCodeFullFlow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()
	userID := uuid.New()

	start, err := svc.StartDeviceCode(ctx, "https://app.loom.dev/device")
	require.NoError(t, err)
	require.Len(t, start.UserCode, 9) // XXXX-XXXX

	poll, err := svc.PollDeviceCode(ctx, start.DeviceCode, SessionTypeCLI)
	require.NoError(t, err)
	require.Equal(t, DeviceCodePending, poll.Status)

	require.NoError(t, svc.CompleteDeviceCode(ctx, start.UserCode, userID))

	poll, err = svc.PollDeviceCode(ctx, start.DeviceCode, SessionTypeCLI)
	require.NoError(t, err)
	require.Equal(t, DeviceCodeCompleted, poll.Status)
	require.True(t, IsAccessTokenFormatValid(poll.AccessToken))
	require.Equal(t, userID, poll.Token.UserID)

	poll, err = svc.PollDeviceCode(ctx, start.DeviceCode, SessionTypeCLI)
	require.NoError(t, err)
	require.Equal(t, DeviceCodeExpired, poll.Status)
}

func TestDeviceCodeExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	start, err := svc.StartDeviceCode(ctx, "https://app.loom.dev/device")
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	poll, err := svc.PollDeviceCode(ctx, start.DeviceCode, SessionTypeCLI)
	require.NoError(t, err)
	require.Equal(t, DeviceCodeExpired, poll.Status)

	err = svc.CompleteDeviceCode(ctx, start.UserCode, uuid.New())
	require.ErrorIs(t, err, ErrInvalidUserCode)
}

func TestDeviceCodeDoubleComplete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, _ := newTestService(clock)
	ctx := context.Background()

	start, err := svc.StartDeviceCode(ctx, "https://app.loom.dev/device")
	require.NoError(t, err)

	require.NoError(t, svc.CompleteDeviceCode(ctx, start.UserCode, uuid.New()))
	err = svc.CompleteDeviceCode(ctx, start.UserCode, uuid.New())
	require.ErrorIs(t, err, ErrInvalidUserCode)
}

func TestDeviceCodeUnknownUserCode(t *testing.T) {
	svc, _ := newTestService(clockwork.NewFakeClock())
	err := svc.CompleteDeviceCode(context.Background(), "ZZZZ-ZZZZ", uuid.New())
	require.ErrorIs(t, err, ErrInvalidUserCode)
}
