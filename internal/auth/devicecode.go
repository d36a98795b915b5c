package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

const deviceCodeDefaultTTL = 10 * time.Minute

// userCodeAlphabet excludes visually ambiguous characters (0/O, 1/I) so a
// human typing it from one screen to another doesn't stumble.
const userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const userCodeLength = 8

func generateUserCode() (string, error) {
	buf := make([]byte, userCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeAlphabet))))
		if err != nil {
			return "", trace.Wrap(err)
		}
		buf[i] = userCodeAlphabet[n.Int64()]
	}
	// Group as XXXX-XXXX for readability, matching the device-flow UX
	// convention of splitting the code visually without adding entropy.
	return fmt.Sprintf("%s-%s", buf[:4], buf[4:]), nil
}

func (s *Service) deviceCodeTTL() time.Duration {
	if s.deviceCodeTTLOverride > 0 {
		return s.deviceCodeTTLOverride
	}
	return deviceCodeDefaultTTL
}

// DeviceCodeStartResult is returned to the limited-input device.
type DeviceCodeStartResult struct {
	DeviceCode      uuid.UUID
	UserCode        string
	VerificationURL string
	ExpiresAt       time.Time
}

// StartDeviceCode creates a pending {device_code, user_code} pair.
func (s *Service) StartDeviceCode(ctx context.Context, verificationURL string) (*DeviceCodeStartResult, error) {
	userCode, err := generateUserCode()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	now := s.clock.Now().UTC()
	dc := &DeviceCode{
		DeviceCode: uuid.New(),
		UserCode:   userCode,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.deviceCodeTTL()),
	}
	if err := s.repo.CreateDeviceCode(ctx, dc); err != nil {
		return nil, trace.Wrap(err)
	}

	return &DeviceCodeStartResult{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURL: verificationURL,
		ExpiresAt:       dc.ExpiresAt,
	}, nil
}

// CompleteDeviceCode is called by an authenticated user to bind a
// pending user code to their identity. It atomically transitions
// Pending -> Completed(userID); calling it twice for the same code, or
// on a code that is expired or already completed, fails.
func (s *Service) CompleteDeviceCode(ctx context.Context, userCode string, userID uuid.UUID) error {
	dc, err := s.repo.GetDeviceCodeByUserCode(ctx, userCode)
	if err != nil {
		return trace.Wrap(err)
	}
	if dc == nil {
		return trace.Wrap(ErrInvalidUserCode)
	}

	now := s.clock.Now().UTC()
	if now.After(dc.ExpiresAt) {
		return trace.Wrap(ErrInvalidUserCode)
	}
	if dc.Completed {
		return trace.Wrap(ErrInvalidUserCode)
	}

	dc.Completed = true
	dc.UserID = &userID
	return trace.Wrap(s.repo.UpdateDeviceCode(ctx, dc))
}

// DeviceCodePollResult reports the outcome of a poll.
type DeviceCodePollResult struct {
	Status      DeviceCodeStatus
	AccessToken string
	Token       *AccessToken
}

// PollDeviceCode reports pending, expired, or completed-with-a-freshly-
// minted access token. A completed code is exchanged for an access token
// exactly once: the second poll after completion reports it as already
// consumed (represented as DeviceCodeExpired, since from the polling
// device's point of view the code is no longer usable).
func (s *Service) PollDeviceCode(ctx context.Context, deviceCode uuid.UUID, sessionType SessionType) (*DeviceCodePollResult, error) {
	dc, err := s.repo.GetDeviceCodeByDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if dc == nil {
		return nil, trace.Wrap(ErrInvalidDeviceCode)
	}

	now := s.clock.Now().UTC()
	if now.After(dc.ExpiresAt) {
		return &DeviceCodePollResult{Status: DeviceCodeExpired}, nil
	}
	if dc.Consumed {
		return &DeviceCodePollResult{Status: DeviceCodeExpired}, nil
	}
	if !dc.Completed {
		return &DeviceCodePollResult{Status: DeviceCodePending}, nil
	}

	dc.Consumed = true
	if err := s.repo.UpdateDeviceCode(ctx, dc); err != nil {
		return nil, trace.Wrap(err)
	}

	plaintext, token, err := s.IssueAccessToken(ctx, IssueAccessTokenParams{
		UserID:      *dc.UserID,
		Label:       "device code login",
		SessionType: sessionType,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return &DeviceCodePollResult{
		Status:      DeviceCodeCompleted,
		AccessToken: plaintext,
		Token:       token,
	}, nil
}
