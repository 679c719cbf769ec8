package services

import (
	"context"
	"errors"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
)

// Lockout counts consecutive failures per subject and locks the subject for a
// window once the threshold is reached. Counters live in the shared store, so
// every instance sees the same state.
type Lockout struct {
	kv        kvstore.Store
	scope     string
	threshold int
	window    time.Duration
	now       func() time.Time
}

func NewLockout(kv kvstore.Store, scope string, threshold int, window time.Duration, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{kv: kv, scope: scope, threshold: threshold, window: window, now: now}
}

func (l *Lockout) key(subject string) string {
	return "lock:" + l.scope + ":" + subject
}

// CheckLocked reports whether subject is locked right now, and until when.
func (l *Lockout) CheckLocked(ctx context.Context, subject string) (bool, time.Time, error) {
	c, err := kvstore.GetJSON[models.LockoutCounter](ctx, l.kv, l.key(subject))
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	if !c.LockUntil.IsZero() && l.now().Before(c.LockUntil) {
		return true, c.LockUntil, nil
	}
	return false, time.Time{}, nil
}

// Guard returns a *LockedError when subject is locked.
func (l *Lockout) Guard(ctx context.Context, subject string) error {
	locked, until, err := l.CheckLocked(ctx, subject)
	if err != nil {
		return err
	}
	if locked {
		return &LockedError{Until: until}
	}
	return nil
}

// RecordFailure increments the counter. The failure that reaches the
// threshold sets LockUntil; a failure after an expired lock starts over.
func (l *Lockout) RecordFailure(ctx context.Context, subject string) (*models.LockoutCounter, error) {
	return kvstore.UpdateJSON(ctx, l.kv, l.key(subject), func(cur *models.LockoutCounter) (*models.LockoutCounter, time.Duration, error) {
		now := l.now()
		next := models.LockoutCounter{}
		if cur != nil && (cur.LockUntil.IsZero() || now.Before(cur.LockUntil)) {
			next = *cur
		}
		next.Attempts++
		next.LastAttempt = now
		if next.Attempts >= l.threshold && next.LockUntil.IsZero() {
			next.LockUntil = now.Add(l.window)
		}
		return &next, l.window, nil
	})
}

// Clear forgets every failure for subject.
func (l *Lockout) Clear(ctx context.Context, subject string) error {
	return l.kv.Delete(ctx, l.key(subject))
}
