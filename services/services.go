// Package services holds the authentication flows: credentials, sessions,
// password reset, email verification, two-factor and access control. Every
// piece of short-lived state goes through kvstore with conditional writes,
// so single-use tokens and counters stay correct across instances.
package services

import (
	"context"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/kvstore"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

// UserStore is the credential store. dbhelper provides a gorm and an
// in-memory implementation.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, update models.UserUpdate) (*models.User, error)
	SetPassword(ctx context.Context, id, passwordHash string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, role models.Role) ([]models.User, error)
}

// Mailer delivers the links of the emailed flows.
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, link string, expiresIn time.Duration) error
	SendEmailVerification(ctx context.Context, toEmail, link string, expiresIn time.Duration) error
}

type Options struct {
	RefreshTTL       time.Duration
	ResetTTL         time.Duration
	VerifyTTL        time.Duration
	TokenRetention   time.Duration
	PendingTwoFactor time.Duration
	LockoutThreshold int
	LockoutWindow    time.Duration
	BcryptCost       int
	AppBaseURL       string
	TOTPIssuer       string
}

// DefaultOptions returns the production lifetimes and limits.
func DefaultOptions() Options {
	return Options{
		RefreshTTL:       utils.DefaultRefreshTokenDays * 24 * time.Hour,
		ResetTTL:         utils.DefaultResetTokenMins * time.Minute,
		VerifyTTL:        utils.DefaultVerifyTokenHours * time.Hour,
		TokenRetention:   24 * time.Hour,
		PendingTwoFactor: 15 * time.Minute,
		LockoutThreshold: utils.DefaultLockoutThreshold,
		LockoutWindow:    utils.DefaultLockoutMins * time.Minute,
		BcryptCost:       12,
		AppBaseURL:       "http://localhost:3000",
		TOTPIssuer:       utils.DefaultTOTPIssuer,
	}
}

type Deps struct {
	Users  UserStore
	KV     kvstore.Store
	Tokens *utils.TokenIssuer
	Mailer Mailer
	Now    func() time.Time
}

// Services bundles the flows over one set of stores.
type Services struct {
	Credentials  *Credentials
	Sessions     *Sessions
	Reset        *PasswordReset
	Verification *EmailVerification
	TwoFactor    *TwoFactor
	Access       *Access
	LoginLock    *Lockout
	CodeLock     *Lockout
}

func New(d Deps, opts Options) (*Services, error) {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	loginLock := NewLockout(d.KV, "login", opts.LockoutThreshold, opts.LockoutWindow, now)
	codeLock := NewLockout(d.KV, "2fa", opts.LockoutThreshold, opts.LockoutWindow, now)

	creds, err := NewCredentials(d.Users, loginLock, opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	sessions := NewSessions(d.Users, d.KV, d.Tokens, opts.RefreshTTL, now)
	return &Services{
		Credentials: creds,
		Sessions:    sessions,
		Reset: &PasswordReset{
			users:     d.Users,
			kv:        d.KV,
			mailer:    d.Mailer,
			creds:     creds,
			loginLock: loginLock,
			ttl:       opts.ResetTTL,
			retention: opts.TokenRetention,
			baseURL:   opts.AppBaseURL,
			now:       now,
		},
		Verification: &EmailVerification{
			users:     d.Users,
			kv:        d.KV,
			mailer:    d.Mailer,
			ttl:       opts.VerifyTTL,
			retention: opts.TokenRetention,
			baseURL:   opts.AppBaseURL,
			now:       now,
		},
		TwoFactor: &TwoFactor{
			users:      d.Users,
			kv:         d.KV,
			creds:      creds,
			totp:       utils.NewTOTP(opts.TOTPIssuer),
			lock:       codeLock,
			pendingTTL: opts.PendingTwoFactor,
			now:        now,
		},
		Access:    &Access{sessions: sessions},
		LoginLock: loginLock,
		CodeLock:  codeLock,
	}, nil
}

// LoginResult is either a session or a demand for a second factor.
type LoginResult struct {
	User              *models.User
	Tokens            *TokenPair
	RequiresTwoFactor bool
}

// Login checks the password and role. Accounts with two-factor enabled get no
// tokens here; the client continues with LoginWithSecondFactor.
func (s *Services) Login(ctx context.Context, email, password string, role models.Role) (*LoginResult, error) {
	user, err := s.Credentials.Authenticate(ctx, email, password, role)
	if err != nil {
		return nil, err
	}
	enabled, err := s.TwoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		return &LoginResult{User: user, RequiresTwoFactor: true}, nil
	}
	tokens, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: tokens}, nil
}

// LoginWithSecondFactor re-checks the password, then a TOTP or backup code.
func (s *Services) LoginWithSecondFactor(ctx context.Context, email, password, code string) (*LoginResult, error) {
	user, err := s.Credentials.Authenticate(ctx, email, password, "")
	if err != nil {
		return nil, err
	}
	if err := s.TwoFactor.Verify(ctx, user.ID, code); err != nil {
		return nil, err
	}
	tokens, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: tokens}, nil
}
