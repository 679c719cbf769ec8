package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/Setouprincely/automated-results-system-sub005/middlewares"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/gorilla/mux"
)

type RegisterRequest struct {
	FullName        string      `json:"fullName" validate:"required,min=2,max=128"`
	Email           string      `json:"email" validate:"required,email,max=255"`
	Password        string      `json:"password" validate:"required,max=72"`
	ConfirmPassword string      `json:"confirmPassword" validate:"omitempty,eqfield=Password"`
	UserType        models.Role `json:"userType" validate:"required,oneof=student teacher examiner"`
	Phone           string      `json:"phone" validate:"max=32"`
	School          string      `json:"school" validate:"max=255"`
	ExamLevel       string      `json:"examLevel" validate:"max=32"`
	Subject         string      `json:"subject" validate:"max=128"`
}

type LoginRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required"`
	UserType models.Role `json:"userType" validate:"required,oneof=student teacher examiner admin"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

func AuthRouter(s *mux.Router, h *Handler, limit, authed func(http.HandlerFunc) http.Handler) {
	s.Handle("/register", limit(h.Register)).Methods(http.MethodPost)
	s.Handle("/login", limit(h.Login)).Methods(http.MethodPost)
	s.Handle("/refresh", limit(h.Refresh)).Methods(http.MethodPost)
	s.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	s.Handle("/me", authed(h.Me)).Methods(http.MethodGet)
	s.Handle("/change-password", authed(h.ChangePassword)).Methods(http.MethodPost)

	s.Handle("/forgot-password", limit(h.RequestPasswordReset)).Methods(http.MethodPost)
	s.Handle("/forgot-password", limit(h.VerifyResetToken)).Methods(http.MethodGet)
	s.Handle("/reset-password", limit(h.ResetPassword)).Methods(http.MethodPost)

	s.Handle("/send-verification", authed(h.SendVerification)).Methods(http.MethodPost)
	s.Handle("/verify-email", limit(h.VerifyEmail)).Methods(http.MethodGet)

	TwoFactorRouter(s, h, limit, authed)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[RegisterRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	user, err := h.svc.Credentials.Register(r.Context(), services.RegisterInput{
		FullName:  req.FullName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.UserType,
		Phone:     req.Phone,
		School:    req.School,
		ExamLevel: req.ExamLevel,
		Subject:   req.Subject,
	})
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogInfo(r, "user registered", "user_id", user.ID, "role", user.Role)

	if err := h.svc.Verification.Send(context.WithoutCancel(r.Context()), user.ID); err != nil {
		middlewares.LogWarn(r, "sending verification email failed", "user_id", user.ID, "error", err)
	}
	tokens, err := h.svc.Sessions.Issue(r.Context(), user)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, AuthResponse{
		Envelope:  utils.OK("Registration successful."),
		User:      user,
		TokenPair: tokens,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[LoginRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, req.UserType)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			middlewares.LogInfo(r, "login failed")
		}
		GenericAuthError(w, r, err)
		return
	}
	if res.RequiresTwoFactor {
		utils.WriteJSON(w, http.StatusOK, AuthResponse{
			Envelope:          utils.OK(utils.TwoFactorRequired),
			RequiresTwoFactor: true,
		})
		return
	}
	utils.WriteJSON(w, http.StatusOK, AuthResponse{
		Envelope:  utils.OK("Login successful."),
		User:      res.User,
		TokenPair: res.Tokens,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[RefreshRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	tokens, err := h.svc.Sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, AuthResponse{Envelope: utils.OK(""), TokenPair: tokens})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[RefreshRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	if err := h.svc.Sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.LoggedOut))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, UserResponse{Envelope: utils.OK(""), User: middlewares.UserFromContext(r.Context())})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[ChangePasswordRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		GenericAuthError(w, r, services.ErrPasswordMismatch)
		return
	}
	user := middlewares.UserFromContext(r.Context())
	updated, err := h.svc.Credentials.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogInfo(r, "password changed", "user_id", user.ID)
	tokens, err := h.svc.Sessions.Issue(r.Context(), updated)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, AuthResponse{Envelope: utils.OK(utils.PasswordChanged), TokenPair: tokens})
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[ForgotPasswordRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	if err := h.svc.Reset.RequestReset(r.Context(), req.Email); err != nil {
		// the response stays generic either way
		middlewares.LogError(r, "password reset request failed", "error", err)
	}
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.PasswordResetRequestSent))
}

func (h *Handler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		GenericAuthError(w, r, services.ErrValidation)
		return
	}
	email, err := h.svc.Reset.VerifyToken(r.Context(), token)
	if err != nil {
		TokenError(w, r, err, false)
		return
	}
	utils.WriteJSON(w, http.StatusOK, EmailResponse{Envelope: utils.OK(""), Email: email})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[ResetPasswordRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	err = h.svc.Reset.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrTokenInvalid), errors.Is(err, services.ErrTokenExpired), errors.Is(err, services.ErrTokenUsed):
		TokenError(w, r, err, false)
		return
	default:
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogInfo(r, "password reset")
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.PasswordResetDone))
}

func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	user := middlewares.UserFromContext(r.Context())
	if err := h.svc.Verification.Send(r.Context(), user.ID); err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.VerificationSent))
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		GenericAuthError(w, r, services.ErrValidation)
		return
	}
	user, err := h.svc.Verification.Verify(r.Context(), token)
	if err != nil {
		TokenError(w, r, err, true)
		return
	}
	utils.WriteJSON(w, http.StatusOK, UserResponse{Envelope: utils.OK(utils.EmailVerified), User: user})
}
