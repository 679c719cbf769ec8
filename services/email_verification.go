package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

// EmailVerification mirrors PasswordReset with a longer lifetime. A consumed
// token flips the user's emailVerified flag instead of the password.
type EmailVerification struct {
	users     UserStore
	kv        kvstore.Store
	mailer    Mailer
	ttl       time.Duration
	retention time.Duration
	baseURL   string
	now       func() time.Time
}

func verifyKey(token string) string { return "verify:" + utils.HashToken(token) }

// Send issues a token for userID and mails the verification link.
func (v *EmailVerification) Send(ctx context.Context, userID string) error {
	user, err := v.users.FindByID(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	token, err := utils.NewRandomToken()
	if err != nil {
		return err
	}
	rec := &models.VerificationToken{
		Email:     user.Email,
		UserID:    user.ID,
		ExpiresAt: v.now().Add(v.ttl),
	}
	ok, err := kvstore.PutJSONIfAbsent(ctx, v.kv, verifyKey(token), rec, v.ttl+v.retention)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("verification token collision")
	}
	return v.mailer.SendEmailVerification(ctx, user.Email, link(v.baseURL, "/verify-email", token), v.ttl)
}

// Verify consumes token and marks the email verified. A pending account
// becomes confirmed. A failed user write releases the token again.
func (v *EmailVerification) Verify(ctx context.Context, token string) (*models.User, error) {
	rec, err := kvstore.UpdateJSON(ctx, v.kv, verifyKey(token), func(cur *models.VerificationToken) (*models.VerificationToken, time.Duration, error) {
		switch {
		case cur == nil:
			return nil, 0, ErrTokenInvalid
		case cur.Verified:
			return nil, 0, ErrAlreadyVerified
		case !v.now().Before(cur.ExpiresAt):
			return nil, 0, ErrTokenExpired
		}
		next := *cur
		next.Verified = true
		return &next, kvstore.KeepTTL, nil
	})
	if err != nil {
		return nil, err
	}

	user, err := v.users.FindByID(ctx, rec.UserID)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		v.release(ctx, token)
		return nil, err
	}
	verified := true
	update := models.UserUpdate{EmailVerified: &verified}
	if user.Status == models.StatusPending {
		confirmed := models.StatusConfirmed
		update.Status = &confirmed
	}
	user, err = v.users.UpdateUser(ctx, user.ID, update)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		v.release(ctx, token)
		return nil, err
	}
	slog.Info("email verified", "user_id", user.ID)
	return user, nil
}

func (v *EmailVerification) release(ctx context.Context, token string) {
	_, err := kvstore.UpdateJSON(ctx, v.kv, verifyKey(token), func(cur *models.VerificationToken) (*models.VerificationToken, time.Duration, error) {
		if cur == nil || !cur.Verified {
			return nil, 0, ErrTokenInvalid
		}
		next := *cur
		next.Verified = false
		return &next, kvstore.KeepTTL, nil
	})
	if err != nil {
		slog.Error("releasing verification token failed", "error", err)
	}
}
