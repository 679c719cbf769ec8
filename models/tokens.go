package models

import "time"

// Records below live in the ephemeral key-value store, JSON encoded.

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	Email     string    `json:"email"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
}

// VerificationToken is a single-use email verification grant.
type VerificationToken struct {
	Email     string    `json:"email"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Verified  bool      `json:"verified"`
}

// RefreshSession backs one opaque refresh token.
type RefreshSession struct {
	UserID       string    `json:"userId"`
	TokenVersion int       `json:"tokenVersion"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// TwoFactorEnrollment holds a user's TOTP secret and backup codes. While
// Enabled is false the record is an unfinished enrollment and BackupCodes are
// plaintext; once enabled they are SHA-256 hex digests.
type TwoFactorEnrollment struct {
	Secret      string    `json:"secret"`
	BackupCodes []string  `json:"backupCodes"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LockoutCounter counts consecutive failures for one subject.
type LockoutCounter struct {
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"lastAttempt"`
	LockUntil   time.Time `json:"lockUntil"`
}
