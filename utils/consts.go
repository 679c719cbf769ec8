package utils

// environment variables
const (
	EnvDatabaseDSN      = "DATABASE_DSN"
	EnvRedisURL         = "REDIS_URL"
	EnvPort             = "PORT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFile          = "LOG_FILE"
	EnvJWTSecret        = "JWT_SECRET"
	EnvJWTSecretOld     = "JWT_SECRET_OLD"
	EnvAccessTokenTTL   = "ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL  = "REFRESH_TOKEN_TTL"
	EnvResetTokenTTL    = "RESET_TOKEN_TTL"
	EnvVerifyTokenTTL   = "VERIFY_TOKEN_TTL"
	EnvLockoutThreshold = "LOCKOUT_THRESHOLD"
	EnvLockoutDuration  = "LOCKOUT_DURATION"
	EnvTOTPIssuer       = "TOTP_ISSUER"
	EnvAppBaseURL       = "APP_BASE_URL"
	EnvBcryptCost       = "BCRYPT_COST"
	EnvRateLimitPerSec  = "RATE_LIMIT_PER_SECOND"
	EnvMailQueue        = "MAIL_QUEUE"
	EnvAdminEmail       = "ADMIN_EMAIL"
	EnvAdminPassword    = "ADMIN_PASSWORD"
)

// messages returned to clients
const (
	EmailTakenSignupError    = "Someone might have signed up with that email before. Please try logging in!"
	InvalidCredentialsError  = "Invalid email, password or user type."
	AccountSuspendedError    = "This account has been suspended."
	PasswordResetRequestSent = "If an account exists for that email, a reset link has been sent."
	PasswordResetDone        = "Your password has been reset."
	PasswordMismatchError    = "Passwords do not match."
	WeakPasswordError        = "Password must be at least 8 characters and contain a letter, a digit and a symbol."
	ResetTokenExpiredError   = "This reset link has expired."
	ResetTokenUsedError      = "This reset link has already been used."
	ResetTokenInvalidError   = "This reset link is invalid."
	VerifyTokenExpiredError  = "This verification link has expired."
	VerifyTokenInvalidError  = "This verification link is invalid."
	AlreadyVerifiedError     = "This email has already been verified."
	VerificationSent         = "Verification email sent."
	EmailVerified            = "Your email has been verified."
	InvalidCodeError         = "Invalid verification code."
	InvalidPasswordError     = "Invalid password."
	TwoFactorAlreadyEnabled  = "Two-factor authentication is already enabled."
	TwoFactorNotEnabled      = "Two-factor authentication is not enabled."
	TwoFactorEnabled         = "Two-factor authentication enabled."
	TwoFactorDisabled        = "Two-factor authentication disabled."
	TwoFactorRequired        = "Two-factor verification required."
	UnauthorizedError        = "Unauthorized."
	ForbiddenError           = "You do not have access to this resource."
	NotFoundError            = "Not found."
	LockedError              = "Too many failed attempts."
	InternalError            = "Something went wrong. Please try again!"
	MissingRequestData       = "Missing request data."
	PasswordChanged          = "Your password has been changed."
	LoggedOut                = "Logged out."
	UserDeleted              = "User deleted."
	RateLimitedError         = "Too many requests. Please slow down."
)

// defaults
const (
	DefaultPort             = "5005"
	DefaultAccessTokenMins  = 15
	DefaultRefreshTokenDays = 7
	DefaultResetTokenMins   = 60
	DefaultVerifyTokenHours = 24
	DefaultLockoutThreshold = 5
	DefaultLockoutMins      = 15
	DefaultTOTPIssuer       = "ExamPortal"
	BackupCodeCount         = 10
	PasswordSymbols         = "!@#$%^&*()-_=+?.,;:"
	MinPasswordLength       = 8
)
