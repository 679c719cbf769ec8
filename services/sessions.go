package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

// TokenPair is what a successful login hands the client.
type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Sessions issues short-lived signed access tokens and rotates opaque,
// single-use refresh tokens.
type Sessions struct {
	users      UserStore
	kv         kvstore.Store
	issuer     *utils.TokenIssuer
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSessions(users UserStore, kv kvstore.Store, issuer *utils.TokenIssuer, refreshTTL time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{users: users, kv: kv, issuer: issuer, refreshTTL: refreshTTL, now: now}
}

func refreshKey(token string) string { return "refresh:" + utils.HashToken(token) }

// Issue signs an access token for user and stores a new refresh session.
func (s *Sessions) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, exp, err := s.issuer.Issue(user.ID, string(user.Role), user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := utils.NewRandomToken()
	if err != nil {
		return nil, err
	}
	rec := &models.RefreshSession{
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		ExpiresAt:    s.now().Add(s.refreshTTL),
	}
	ok, err := kvstore.PutJSONIfAbsent(ctx, s.kv, refreshKey(refresh), rec, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("refresh token collision")
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// Authenticate decodes a bearer token and loads its user. Tokens minted
// before the user's last password change are rejected.
func (s *Sessions) Authenticate(ctx context.Context, token string) (*models.User, *utils.AccessClaims, error) {
	claims, err := s.issuer.Decode(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if claims.TokenVersion != user.TokenVersion {
		return nil, nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
	}
	if user.Status == models.StatusSuspended {
		return nil, nil, ErrForbidden
	}
	return user, claims, nil
}

// Refresh consumes refreshToken and returns a new pair. A token can be
// exchanged once; a concurrent second exchange fails.
func (s *Sessions) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	key := refreshKey(refreshToken)
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	var rec models.RefreshSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding refresh session: %w", err)
	}
	ok, err := s.kv.CompareAndDelete(ctx, key, raw)
	if err != nil {
		return nil, err
	}
	if !ok || !s.now().Before(rec.ExpiresAt) {
		return nil, ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, rec.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if user.TokenVersion != rec.TokenVersion {
		return nil, ErrUnauthorized
	}
	if user.Status == models.StatusSuspended {
		return nil, ErrForbidden
	}
	return s.Issue(ctx, user)
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *Sessions) Logout(ctx context.Context, refreshToken string) error {
	return s.kv.Delete(ctx, refreshKey(refreshToken))
}
