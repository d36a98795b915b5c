package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepository is an in-memory SessionRepository for tests, modeled on
// the in-process fakes used throughout the pack's service-layer tests
// rather than standing up a real database.
type fakeRepository struct {
	mu sync.Mutex

	accessTokens map[string]*AccessToken // by ID string
	magicLinks   map[uuid.UUID]*MagicLink
	deviceCodes  map[uuid.UUID]*DeviceCode
	wsTokens     map[string]*WSToken // by hash
	users        map[uuid.UUID]*User
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accessTokens: make(map[string]*AccessToken),
		magicLinks:   make(map[uuid.UUID]*MagicLink),
		deviceCodes:  make(map[uuid.UUID]*DeviceCode),
		wsTokens:     make(map[string]*WSToken),
		users:        make(map[uuid.UUID]*User),
	}
}

func (f *fakeRepository) CreateAccessToken(ctx context.Context, t *AccessToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.accessTokens[t.ID.String()] = &cp
	return nil
}

func (f *fakeRepository) GetAccessTokenByHash(ctx context.Context, hash string) (*AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.accessTokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) UpdateAccessToken(ctx context.Context, t *AccessToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.accessTokens[t.ID.String()] = &cp
	return nil
}

func (f *fakeRepository) ListAccessTokensByUser(ctx context.Context, userID uuid.UUID) ([]*AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*AccessToken
	for _, t := range f.accessTokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepository) DeleteAccessTokensExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, t := range f.accessTokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(f.accessTokens, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) CreateMagicLink(ctx context.Context, m *MagicLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.magicLinks[m.ID] = &cp
	return nil
}

func (f *fakeRepository) GetMagicLinkByHash(ctx context.Context, hash string) (*MagicLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.magicLinks {
		if m.TokenHash == hash {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) InvalidateMagicLinksForEmail(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, m := range f.magicLinks {
		if m.Email == email && m.UsedAt == nil {
			t := now
			m.UsedAt = &t
		}
	}
	return nil
}

func (f *fakeRepository) UpdateMagicLink(ctx context.Context, m *MagicLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.magicLinks[m.ID] = &cp
	return nil
}

func (f *fakeRepository) CreateDeviceCode(ctx context.Context, d *DeviceCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deviceCodes[d.DeviceCode] = &cp
	return nil
}

func (f *fakeRepository) GetDeviceCodeByDeviceCode(ctx context.Context, deviceCode uuid.UUID) (*DeviceCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deviceCodes[deviceCode]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepository) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deviceCodes {
		if d.UserCode == userCode {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) UpdateDeviceCode(ctx context.Context, d *DeviceCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.deviceCodes[d.DeviceCode] = &cp
	return nil
}

func (f *fakeRepository) CreateWSToken(ctx context.Context, w *WSToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.wsTokens[w.TokenHash] = &cp
	return nil
}

func (f *fakeRepository) GetWSTokenByHash(ctx context.Context, hash string) (*WSToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wsTokens[hash]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeRepository) UpdateWSToken(ctx context.Context, w *WSToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.wsTokens[w.TokenHash] = &cp
	return nil
}

func (f *fakeRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// fakeEmailSender records every magic-link email instead of sending one.
type fakeEmailSender struct {
	mu   sync.Mutex
	sent []fakeEmail
}

type fakeEmail struct {
	Email string
	URL   string
}

func (f *fakeEmailSender) SendMagicLink(ctx context.Context, email, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeEmail{Email: email, URL: url})
	return nil
}
