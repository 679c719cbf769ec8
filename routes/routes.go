package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/Setouprincely/automated-results-system-sub005/middlewares"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

var validate = validator.New()

func init() {
	// report json names in validation messages
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

type RequestBody interface {
	RegisterRequest | LoginRequest | RefreshRequest | ChangePasswordRequest |
		ForgotPasswordRequest | ResetPasswordRequest | EnableTwoFactorRequest |
		VerifyTwoFactorRequest | DisableTwoFactorRequest | UpdateUserRequest
}

var errEmptyBody = errors.New(utils.MissingRequestData)

// DecodeValidBody decodes the JSON body into B and runs its validate tags.
// Errors are wrapped in services.ErrValidation.
func DecodeValidBody[B RequestBody](r *http.Request) (B, error) {
	var requestBody B
	if r.Body == nil {
		return requestBody, fmt.Errorf("%w: %w", services.ErrValidation, errEmptyBody)
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		return requestBody, fmt.Errorf("%w: %s", services.ErrValidation, utils.MissingRequestData)
	}
	if err := validate.Struct(requestBody); err != nil {
		return requestBody, fmt.Errorf("%w: %s", services.ErrValidation, describeValidation(err))
	}
	return requestBody, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return utils.MissingRequestData
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

type Options struct {
	// RateLimitPerSecond limits the unauthenticated credential endpoints per
	// client IP. Zero disables limiting.
	RateLimitPerSecond float64
}

// Handler serves the HTTP API over one Services bundle.
type Handler struct {
	svc *services.Services
}

// CreateRoutes registers every endpoint on r.
func CreateRoutes(r *mux.Router, svc *services.Services, opts Options) {
	h := &Handler{svc: svc}
	limit := func(next http.HandlerFunc) http.Handler { return next }
	if opts.RateLimitPerSecond > 0 {
		rl := middlewares.RateLimit(opts.RateLimitPerSecond)
		limit = func(next http.HandlerFunc) http.Handler { return rl(next) }
	}
	authed := func(next http.HandlerFunc) http.Handler {
		return middlewares.RequireAuth(svc.Sessions)(next)
	}

	r.HandleFunc("/health", Health).Methods(http.MethodGet)
	AuthRouter(r.PathPrefix("/auth").Subrouter(), h, limit, authed)
	UserRouter(r, h)
}

// NewHandler builds the router and wraps it with request logging and panic
// recovery.
func NewHandler(svc *services.Services, opts Options) http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteError(w, http.StatusNotFound, utils.NotFoundError)
	})
	CreateRoutes(r, svc, opts)
	return middlewares.RequestLogger(middlewares.Recoverer(r))
}

func Health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.OK("ok"))
}
