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

// Two-factor states reported by Status.
const (
	TwoFactorNotEnrolled = "not_enrolled"
	TwoFactorPending     = "pending"
	TwoFactorEnabled     = "enabled"
)

var errNoBackupMatch = errors.New("no backup code match")

// TwoFactor runs the per-user state machine
// not enrolled -> pending -> enabled -> not enrolled.
type TwoFactor struct {
	users      UserStore
	kv         kvstore.Store
	creds      *Credentials
	totp       *utils.TOTP
	lock       *Lockout
	pendingTTL time.Duration
	now        func() time.Time
}

// Enrollment is shown to the user once, when enrollment starts.
type Enrollment struct {
	Secret      string   `json:"secret"`
	QRPayload   string   `json:"qrPayload"`
	BackupCodes []string `json:"backupCodes"`
}

type TwoFactorStatus struct {
	State                string `json:"state"`
	Enabled              bool   `json:"enabled"`
	BackupCodesRemaining int    `json:"backupCodesRemaining"`
}

func twoFactorKey(userID string) string { return "2fa:" + userID }

func (t *TwoFactor) load(ctx context.Context, userID string) (*models.TwoFactorEnrollment, error) {
	rec, err := kvstore.GetJSON[models.TwoFactorEnrollment](ctx, t.kv, twoFactorKey(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

func (t *TwoFactor) userWithPassword(ctx context.Context, userID, password string) (*models.User, error) {
	user, err := t.users.FindByID(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !t.creds.checkPassword(user, password) {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

// BeginEnrollment generates a secret and backup codes and stores them as a
// pending enrollment. A second call while pending starts over.
func (t *TwoFactor) BeginEnrollment(ctx context.Context, userID, password string) (*Enrollment, error) {
	user, err := t.userWithPassword(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	secret, err := t.totp.NewSecret()
	if err != nil {
		return nil, err
	}
	codes, err := utils.NewBackupCodes(utils.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	_, err = kvstore.UpdateJSON(ctx, t.kv, twoFactorKey(userID), func(cur *models.TwoFactorEnrollment) (*models.TwoFactorEnrollment, time.Duration, error) {
		if cur != nil && cur.Enabled {
			return nil, 0, ErrAlreadyEnabled
		}
		return &models.TwoFactorEnrollment{
			Secret:      secret,
			BackupCodes: codes,
			CreatedAt:   t.now(),
		}, t.pendingTTL, nil
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{
		Secret:      secret,
		QRPayload:   t.totp.ProvisioningURI(secret, user.Email),
		BackupCodes: codes,
	}, nil
}

// ConfirmEnrollment enables two-factor when code matches the pending secret
// and returns the backup codes. From here on only their hashes are stored.
// Wrong codes count toward the same lockout as Verify.
func (t *TwoFactor) ConfirmEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	if err := t.lock.Guard(ctx, userID); err != nil {
		return nil, err
	}
	var codes []string
	_, err := kvstore.UpdateJSON(ctx, t.kv, twoFactorKey(userID), func(cur *models.TwoFactorEnrollment) (*models.TwoFactorEnrollment, time.Duration, error) {
		switch {
		case cur == nil:
			return nil, 0, ErrNotEnabled
		case cur.Enabled:
			return nil, 0, ErrAlreadyEnabled
		case !t.totp.Verify(cur.Secret, code, t.now()):
			return nil, 0, ErrInvalidCode
		}
		codes = cur.BackupCodes
		hashed := make([]string, len(cur.BackupCodes))
		for i, c := range cur.BackupCodes {
			hashed[i] = utils.HashToken(c)
		}
		return &models.TwoFactorEnrollment{
			Secret:      cur.Secret,
			BackupCodes: hashed,
			Enabled:     true,
			CreatedAt:   cur.CreatedAt,
		}, 0, nil
	})
	if errors.Is(err, ErrInvalidCode) {
		if _, lerr := t.lock.RecordFailure(ctx, userID); lerr != nil {
			return nil, lerr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if err := t.lock.Clear(ctx, userID); err != nil {
		slog.Warn("clearing two-factor lockout failed", "user_id", userID, "error", err)
	}
	slog.Info("two-factor enabled", "user_id", userID)
	return codes, nil
}

// IsEnabled reports whether login for userID needs a second factor. Pending
// enrollments do not count.
func (t *TwoFactor) IsEnabled(ctx context.Context, userID string) (bool, error) {
	rec, err := t.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Enabled, nil
}

// consumeBackupCode removes code from the enabled record. The removal is a
// compare-and-swap, so a code is accepted at most once.
func (t *TwoFactor) consumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	hash := utils.HashToken(utils.NormalizeBackupCode(code))
	_, err := kvstore.UpdateJSON(ctx, t.kv, twoFactorKey(userID), func(cur *models.TwoFactorEnrollment) (*models.TwoFactorEnrollment, time.Duration, error) {
		if cur == nil || !cur.Enabled {
			return nil, 0, ErrNotEnabled
		}
		for i, h := range cur.BackupCodes {
			if h == hash {
				next := *cur
				next.BackupCodes = append(append([]string{}, cur.BackupCodes[:i]...), cur.BackupCodes[i+1:]...)
				return &next, kvstore.KeepTTL, nil
			}
		}
		return nil, 0, errNoBackupMatch
	})
	if errors.Is(err, errNoBackupMatch) {
		return false, nil
	}
	return err == nil, err
}

// checkCode accepts a TOTP code of the current step or either neighbour, or
// an unused backup code, which it consumes.
func (t *TwoFactor) checkCode(ctx context.Context, userID string, rec *models.TwoFactorEnrollment, code string) (bool, error) {
	if t.totp.Verify(rec.Secret, code, t.now()) {
		return true, nil
	}
	return t.consumeBackupCode(ctx, userID, code)
}

// Verify is the login second factor. A locked user is refused before the
// code is looked at; every miss counts towards the lock.
func (t *TwoFactor) Verify(ctx context.Context, userID, code string) error {
	if err := t.lock.Guard(ctx, userID); err != nil {
		return err
	}
	rec, err := t.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Enabled {
		return ErrNotEnabled
	}
	ok, err := t.checkCode(ctx, userID, rec, code)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := t.lock.RecordFailure(ctx, userID); err != nil {
			return err
		}
		return ErrInvalidCode
	}
	return t.lock.Clear(ctx, userID)
}

// Disable removes the enrollment after checking both the password and a
// second factor.
func (t *TwoFactor) Disable(ctx context.Context, userID, password, code string) error {
	if _, err := t.userWithPassword(ctx, userID, password); err != nil {
		return err
	}
	if err := t.lock.Guard(ctx, userID); err != nil {
		return err
	}
	rec, err := t.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Enabled {
		return ErrNotEnabled
	}
	ok, err := t.checkCode(ctx, userID, rec, code)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := t.lock.RecordFailure(ctx, userID); err != nil {
			return err
		}
		return ErrInvalidCode
	}
	if err := t.kv.Delete(ctx, twoFactorKey(userID)); err != nil {
		return err
	}
	slog.Info("two-factor disabled", "user_id", userID)
	return t.lock.Clear(ctx, userID)
}

func (t *TwoFactor) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	rec, err := t.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case rec == nil:
		return &TwoFactorStatus{State: TwoFactorNotEnrolled}, nil
	case !rec.Enabled:
		return &TwoFactorStatus{State: TwoFactorPending}, nil
	}
	return &TwoFactorStatus{State: TwoFactorEnabled, Enabled: true, BackupCodesRemaining: len(rec.BackupCodes)}, nil
}
