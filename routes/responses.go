package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/middlewares"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
)

// AuthResponse is returned by register, login, refresh and verify-2fa.
type AuthResponse struct {
	utils.Envelope
	*models.User
	*services.TokenPair
	RequiresTwoFactor bool `json:"requiresTwoFactor,omitempty"`
}

type UserResponse struct {
	utils.Envelope
	User *models.User `json:"user"`
}

type UsersResponse struct {
	utils.Envelope
	Users []models.User `json:"users"`
}

type EmailResponse struct {
	utils.Envelope
	Email string `json:"email"`
}

type TokenErrorResponse struct {
	utils.Envelope
	Reason string `json:"reason"`
}

type EnrollmentResponse struct {
	utils.Envelope
	*services.Enrollment
}

type BackupCodesResponse struct {
	utils.Envelope
	BackupCodes []string `json:"backupCodes"`
}

type TwoFactorStatusResponse struct {
	utils.Envelope
	*services.TwoFactorStatus
}

// statusOverride lets a handler remap one error, e.g. InvalidCode is a 400 on
// the enable and disable endpoints.
type statusOverride struct {
	err    error
	status int
}

// GenericAuthError translates a service error into the JSON envelope. Errors
// outside the known set are logged and reported as a generic 500.
func GenericAuthError(w http.ResponseWriter, r *http.Request, err error, overrides ...statusOverride) {
	status, message := statusFor(err)
	for _, o := range overrides {
		if errors.Is(err, o.err) {
			status = o.status
		}
	}
	switch {
	case status == http.StatusInternalServerError:
		middlewares.LogError(r, "request failed", "error", err)
	case status == http.StatusTooManyRequests:
		middlewares.LogWarn(r, "locked out", "error", err)
	default:
		middlewares.LogDebug(r, "request rejected", "status", status, "error", err)
	}
	utils.WriteError(w, status, message)
}

func statusFor(err error) (int, string) {
	var locked *services.LockedError
	switch {
	case errors.As(err, &locked):
		return http.StatusTooManyRequests, utils.LockedError + " " + utils.GenerateBanMessage(locked.Until, time.Now())
	case errors.Is(err, services.ErrLocked):
		return http.StatusTooManyRequests, utils.LockedError
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, services.ErrWeakPassword):
		return http.StatusBadRequest, utils.WeakPasswordError
	case errors.Is(err, services.ErrPasswordMismatch):
		return http.StatusBadRequest, utils.PasswordMismatchError
	case errors.Is(err, services.ErrTokenInvalid):
		return http.StatusBadRequest, utils.ResetTokenInvalidError
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusBadRequest, utils.ResetTokenExpiredError
	case errors.Is(err, services.ErrTokenUsed):
		return http.StatusBadRequest, utils.ResetTokenUsedError
	case errors.Is(err, services.ErrAlreadyVerified):
		return http.StatusBadRequest, utils.AlreadyVerifiedError
	case errors.Is(err, services.ErrAlreadyEnabled):
		return http.StatusBadRequest, utils.TwoFactorAlreadyEnabled
	case errors.Is(err, services.ErrNotEnabled):
		return http.StatusBadRequest, utils.TwoFactorNotEnabled
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, utils.InvalidCredentialsError
	case errors.Is(err, services.ErrInvalidPassword):
		return http.StatusUnauthorized, utils.InvalidPasswordError
	case errors.Is(err, services.ErrInvalidCode):
		return http.StatusUnauthorized, utils.InvalidCodeError
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, utils.UnauthorizedError
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, utils.ForbiddenError
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, utils.NotFoundError
	case errors.Is(err, services.ErrDuplicateEmail):
		return http.StatusConflict, utils.EmailTakenSignupError
	}
	return http.StatusInternalServerError, utils.InternalError
}

func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return utils.MissingRequestData
}

// TokenError reports why a reset or verification token was refused.
func TokenError(w http.ResponseWriter, r *http.Request, err error, verification bool) {
	var reason, message string
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		reason, message = "expired", utils.ResetTokenExpiredError
		if verification {
			message = utils.VerifyTokenExpiredError
		}
	case errors.Is(err, services.ErrTokenUsed):
		reason, message = "used", utils.ResetTokenUsedError
	case errors.Is(err, services.ErrAlreadyVerified):
		reason, message = "used", utils.AlreadyVerifiedError
	case errors.Is(err, services.ErrTokenInvalid):
		reason, message = "invalid", utils.ResetTokenInvalidError
		if verification {
			message = utils.VerifyTokenInvalidError
		}
	default:
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogDebug(r, "token refused", "reason", reason)
	utils.WriteJSON(w, http.StatusBadRequest, TokenErrorResponse{Envelope: utils.Envelope{Message: message}, Reason: reason})
}
