package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

// PasswordReset issues emailed single-use reset tokens. A token is Issued
// until it is Consumed or passes its expiry; records are kept for a
// retention period after that so replays report used or expired rather than
// invalid.
type PasswordReset struct {
	users     UserStore
	kv        kvstore.Store
	mailer    Mailer
	creds     *Credentials
	loginLock *Lockout
	ttl       time.Duration
	retention time.Duration
	baseURL   string
	now       func() time.Time
}

func resetKey(token string) string { return "reset:" + utils.HashToken(token) }

func link(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// RequestReset always succeeds from the caller's point of view. When email
// belongs to an account a token is stored and mailed.
func (p *PasswordReset) RequestReset(ctx context.Context, email string) error {
	user, err := p.users.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		slog.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	token, err := utils.NewRandomToken()
	if err != nil {
		return err
	}
	rec := &models.ResetToken{
		Email:     user.Email,
		UserID:    user.ID,
		ExpiresAt: p.now().Add(p.ttl),
	}
	ok, err := kvstore.PutJSONIfAbsent(ctx, p.kv, resetKey(token), rec, p.ttl+p.retention)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("reset token collision")
	}
	if err := p.mailer.SendPasswordReset(ctx, user.Email, link(p.baseURL, "/reset-password", token), p.ttl); err != nil {
		slog.Error("sending password reset email failed", "user_id", user.ID, "error", err)
	}
	return nil
}

func (p *PasswordReset) check(rec *models.ResetToken) error {
	switch {
	case rec == nil:
		return ErrTokenInvalid
	case rec.Used:
		return ErrTokenUsed
	case !p.now().Before(rec.ExpiresAt):
		return ErrTokenExpired
	}
	return nil
}

// VerifyToken returns the email a live token was issued for.
func (p *PasswordReset) VerifyToken(ctx context.Context, token string) (string, error) {
	rec, err := kvstore.GetJSON[models.ResetToken](ctx, p.kv, resetKey(token))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrTokenInvalid
	}
	if err != nil {
		return "", err
	}
	if err := p.check(rec); err != nil {
		return "", err
	}
	return rec.Email, nil
}

// ResetPassword consumes token and sets the new password. The token is
// marked used with a compare-and-swap, so of two concurrent resets exactly
// one wins. If the password write fails the claim is released and the token
// stays usable.
func (p *PasswordReset) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := utils.CheckPasswordPolicy(newPassword); err != nil {
		return ErrWeakPassword
	}
	rec, err := kvstore.UpdateJSON(ctx, p.kv, resetKey(token), func(cur *models.ResetToken) (*models.ResetToken, time.Duration, error) {
		if err := p.check(cur); err != nil {
			return nil, 0, err
		}
		next := *cur
		next.Used = true
		return &next, kvstore.KeepTTL, nil
	})
	if err != nil {
		return err
	}
	if _, err := p.creds.setPassword(ctx, rec.UserID, newPassword); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		p.release(ctx, token)
		return err
	}
	if err := p.loginLock.Clear(ctx, rec.Email); err != nil {
		slog.Warn("clearing login lockout failed", "user_id", rec.UserID, "error", err)
	}
	return nil
}

// release undoes the used mark of a claim whose password write failed.
func (p *PasswordReset) release(ctx context.Context, token string) {
	_, err := kvstore.UpdateJSON(ctx, p.kv, resetKey(token), func(cur *models.ResetToken) (*models.ResetToken, time.Duration, error) {
		if cur == nil || !cur.Used {
			return nil, 0, ErrTokenInvalid
		}
		next := *cur
		next.Used = false
		return &next, kvstore.KeepTTL, nil
	})
	if err != nil {
		slog.Error("releasing reset token failed", "error", err)
	}
}
