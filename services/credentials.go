package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/google/uuid"
)

// Credentials owns password hashing and account records.
type Credentials struct {
	users     UserStore
	loginLock *Lockout
	cost      int
	dummyHash string
}

// NewCredentials precomputes a hash used to keep unknown-email lookups as slow
// as real ones.
func NewCredentials(users UserStore, loginLock *Lockout, cost int) (*Credentials, error) {
	dummy, err := utils.HashPassword("not-a-real-password-1!", cost)
	if err != nil {
		return nil, fmt.Errorf("hashing dummy password: %w", err)
	}
	return &Credentials{users: users, loginLock: loginLock, cost: cost, dummyHash: dummy}, nil
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	FullName  string
	Email     string
	Password  string
	Role      models.Role
	Phone     string
	School    string
	ExamLevel string
	Subject   string
}

func (in RegisterInput) validate() error {
	switch in.Role {
	case models.RoleStudent:
		if in.School == "" || in.ExamLevel == "" {
			return validationError("students need a school and an exam level")
		}
	case models.RoleTeacher:
		if in.School == "" || in.Subject == "" {
			return validationError("teachers need a school and a subject")
		}
	case models.RoleExaminer:
		if in.Subject == "" {
			return validationError("examiners need a subject")
		}
	default:
		return validationError("userType must be student, teacher or examiner")
	}
	if strings.TrimSpace(in.FullName) == "" {
		return validationError("fullName is required")
	}
	return nil
}

// Register creates a pending account for one of the self-service roles.
func (c *Credentials) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	user := &models.User{
		Email:     in.Email,
		Role:      in.Role,
		Status:    models.StatusPending,
		FullName:  strings.TrimSpace(in.FullName),
		Phone:     in.Phone,
		School:    in.School,
		ExamLevel: in.ExamLevel,
		Subject:   in.Subject,
	}
	if err := c.CreateUser(ctx, user, in.Password); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser hashes password and stores user under a fresh id. Emails are
// unique across roles.
func (c *Credentials) CreateUser(ctx context.Context, user *models.User, password string) error {
	if models.NormalizeEmail(user.Email) == "" {
		return validationError("email is required")
	}
	if err := utils.CheckPasswordPolicy(password); err != nil {
		return ErrWeakPassword
	}
	hash, err := utils.HashPassword(password, c.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.ID = uuid.NewString()
	user.PasswordHash = hash
	if err := c.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// VerifyPassword reports whether password matches the account for email.
// Unknown emails still pay for one bcrypt comparison.
func (c *Credentials) VerifyPassword(ctx context.Context, email, password string) (bool, error) {
	user, err := c.users.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = utils.ComparePasswords(c.dummyHash, password)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return utils.ComparePasswords(user.PasswordHash, password) == nil, nil
}

// checkPassword verifies the password of an already loaded user.
func (c *Credentials) checkPassword(user *models.User, password string) bool {
	return utils.ComparePasswords(user.PasswordHash, password) == nil
}

// Authenticate is the primary login check. Unknown email, wrong password and
// role mismatch are indistinguishable to the caller and all count towards the
// per-email lockout. An empty role accepts any role.
func (c *Credentials) Authenticate(ctx context.Context, email, password string, role models.Role) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if err := c.loginLock.Guard(ctx, email); err != nil {
		return nil, err
	}
	user, err := c.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		_ = utils.ComparePasswords(c.dummyHash, password)
		return nil, c.failLogin(ctx, email)
	case err != nil:
		return nil, err
	}
	if !c.checkPassword(user, password) || (role != "" && user.Role != role) {
		return nil, c.failLogin(ctx, email)
	}
	if user.Status == models.StatusSuspended {
		return nil, ErrForbidden
	}
	if err := c.loginLock.Clear(ctx, email); err != nil {
		slog.Warn("clearing login lockout failed", "email", email, "error", err)
	}
	return user, nil
}

func (c *Credentials) failLogin(ctx context.Context, email string) error {
	if _, err := c.loginLock.RecordFailure(ctx, email); err != nil {
		return err
	}
	return ErrInvalidCredentials
}

func (c *Credentials) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := c.users.FindByID(ctx, id)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (c *Credentials) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := c.users.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// UpdateUser merges update into the account. Status and EmailVerified may
// only be set when byAdmin is true.
func (c *Credentials) UpdateUser(ctx context.Context, id string, update models.UserUpdate, byAdmin bool) (*models.User, error) {
	if !byAdmin && (update.Status != nil || update.EmailVerified != nil) {
		return nil, ErrForbidden
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, validationError("unknown status %q", *update.Status)
	}
	user, err := c.users.UpdateUser(ctx, id, update)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (c *Credentials) DeleteUser(ctx context.Context, callerID, id string) error {
	if callerID == id {
		return ErrForbidden
	}
	err := c.users.DeleteUser(ctx, id)
	if errors.Is(err, models.ErrUserNotFound) {
		return ErrNotFound
	}
	return err
}

func (c *Credentials) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	if role != "" && !role.Valid() {
		return nil, validationError("unknown userType %q", role)
	}
	return c.users.ListUsers(ctx, role)
}

// ChangePassword replaces the password after re-checking the current one.
// Every session issued before the change stops validating.
func (c *Credentials) ChangePassword(ctx context.Context, userID, current, next string) (*models.User, error) {
	user, err := c.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !c.checkPassword(user, current) {
		return nil, ErrInvalidPassword
	}
	return c.setPassword(ctx, userID, next)
}

func (c *Credentials) setPassword(ctx context.Context, userID, password string) (*models.User, error) {
	if err := utils.CheckPasswordPolicy(password); err != nil {
		return nil, ErrWeakPassword
	}
	hash, err := utils.HashPassword(password, c.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user, err := c.users.SetPassword(ctx, userID, hash)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// BootstrapAdmin makes sure an admin account exists for email. It is a no-op
// when the admin is already there.
func (c *Credentials) BootstrapAdmin(ctx context.Context, email, password string) (*models.User, error) {
	existing, err := c.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.IsAdmin():
		return existing, nil
	case err == nil:
		return nil, fmt.Errorf("bootstrap admin %s: %w", email, ErrDuplicateEmail)
	case !errors.Is(err, models.ErrUserNotFound):
		return nil, err
	}
	admin := &models.User{
		Email:         email,
		Role:          models.RoleAdmin,
		Status:        models.StatusConfirmed,
		EmailVerified: true,
		FullName:      "Administrator",
	}
	if err := c.CreateUser(ctx, admin, password); err != nil {
		return nil, err
	}
	slog.Info("admin account created", "email", admin.Email, "id", admin.ID)
	return admin, nil
}
