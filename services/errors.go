package services

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the services. The HTTP layer maps them to status codes.
var (
	ErrValidation         = errors.New("validation failed")
	ErrWeakPassword       = errors.New("password does not meet the policy")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenUsed          = errors.New("token already used")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrAlreadyEnabled     = errors.New("two-factor already enabled")
	ErrNotEnabled         = errors.New("two-factor not enabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCode        = errors.New("invalid code")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrLocked             = errors.New("locked")
)

// LockedError carries the time a lock lifts. errors.Is(err, ErrLocked) holds.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
