package routes

import (
	"net/http"

	"github.com/Setouprincely/automated-results-system-sub005/middlewares"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/gorilla/mux"
)

// EnableTwoFactorRequest drives both enrollment steps: without a code it
// starts enrollment, with one it confirms it.
type EnableTwoFactorRequest struct {
	Password         string `json:"password" validate:"required"`
	VerificationCode string `json:"verificationCode"`
}

type VerifyTwoFactorRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	VerificationCode string `json:"verificationCode" validate:"required_without=BackupCode"`
	BackupCode       string `json:"backupCode"`
}

type DisableTwoFactorRequest struct {
	Password         string `json:"password" validate:"required"`
	VerificationCode string `json:"verificationCode" validate:"required_without=BackupCode"`
	BackupCode       string `json:"backupCode"`
}

func secondFactor(code, backup string) string {
	if code != "" {
		return code
	}
	return backup
}

var codeIsBadRequest = statusOverride{err: services.ErrInvalidCode, status: http.StatusBadRequest}

func TwoFactorRouter(s *mux.Router, h *Handler, limit, authed func(http.HandlerFunc) http.Handler) {
	s.Handle("/enable-2fa", authed(h.EnableTwoFactor)).Methods(http.MethodPost)
	s.Handle("/verify-2fa", limit(h.VerifyTwoFactor)).Methods(http.MethodPost)
	s.Handle("/disable-2fa", authed(h.DisableTwoFactor)).Methods(http.MethodPost)
	s.Handle("/2fa-status", authed(h.TwoFactorStatus)).Methods(http.MethodGet)
}

func (h *Handler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[EnableTwoFactorRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	user := middlewares.UserFromContext(r.Context())

	if req.VerificationCode == "" {
		enrollment, err := h.svc.TwoFactor.BeginEnrollment(r.Context(), user.ID, req.Password)
		if err != nil {
			GenericAuthError(w, r, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, EnrollmentResponse{
			Envelope:   utils.OK("Scan the QR code and confirm with a verification code."),
			Enrollment: enrollment,
		})
		return
	}

	ok, err := h.svc.Credentials.VerifyPassword(r.Context(), user.Email, req.Password)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	if !ok {
		GenericAuthError(w, r, services.ErrInvalidPassword)
		return
	}
	codes, err := h.svc.TwoFactor.ConfirmEnrollment(r.Context(), user.ID, req.VerificationCode)
	if err != nil {
		GenericAuthError(w, r, err, codeIsBadRequest)
		return
	}
	middlewares.LogInfo(r, "two-factor enabled", "user_id", user.ID)
	utils.WriteJSON(w, http.StatusOK, BackupCodesResponse{Envelope: utils.OK(utils.TwoFactorEnabled), BackupCodes: codes})
}

func (h *Handler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[VerifyTwoFactorRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	res, err := h.svc.LoginWithSecondFactor(r.Context(), req.Email, req.Password, secondFactor(req.VerificationCode, req.BackupCode))
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, AuthResponse{
		Envelope:  utils.OK("Login successful."),
		User:      res.User,
		TokenPair: res.Tokens,
	})
}

func (h *Handler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[DisableTwoFactorRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	user := middlewares.UserFromContext(r.Context())
	if err := h.svc.TwoFactor.Disable(r.Context(), user.ID, req.Password, secondFactor(req.VerificationCode, req.BackupCode)); err != nil {
		GenericAuthError(w, r, err, codeIsBadRequest)
		return
	}
	middlewares.LogInfo(r, "two-factor disabled", "user_id", user.ID)
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.TwoFactorDisabled))
}

func (h *Handler) TwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.TwoFactor.Status(r.Context(), middlewares.UserFromContext(r.Context()).ID)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, TwoFactorStatusResponse{Envelope: utils.OK(""), TwoFactorStatus: st})
}
