package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/services"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/gorilla/mux"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

var ErrMissingToken = errors.New(utils.MissingRequestData)

// Authenticator turns a bearer token into the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, *utils.AccessClaims, error)
}

// GetTokenFromAuthorizationHeader extracts the token of a "Bearer <token>" header.
func GetTokenFromAuthorizationHeader(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// UserFromContext returns the user RequireAuth stored, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// Authorizer decides whether a bearer may touch a resource.
type Authorizer interface {
	AuthorizeResource(ctx context.Context, token, resourceID string, owner services.OwnerFunc) (*services.Decision, error)
}

// rejectToken writes the response for a failed bearer check.
func rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		LogInfo(r, "suspended account presented a token")
		utils.WriteError(w, http.StatusForbidden, utils.AccountSuspendedError)
	case errors.Is(err, services.ErrUnauthorized):
		// the client should use its refresh token now
		LogDebug(r, "access token rejected", "error", err)
		utils.WriteError(w, http.StatusUnauthorized, utils.UnauthorizedError)
	default:
		LogError(r, "authenticating request", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, utils.InternalError)
	}
}

// RequireAuth rejects requests without a valid access token and stores the
// caller in the request context.
func RequireAuth(auth Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetTokenFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, utils.UnauthorizedError)
				return
			}
			user, _, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				rejectToken(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole admits only callers with one of roles. Must run after RequireAuth.
func RequireRole(roles ...models.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				utils.WriteError(w, http.StatusUnauthorized, utils.UnauthorizedError)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			LogWarn(r, "role check failed", "user_id", user.ID, "role", user.Role)
			utils.WriteError(w, http.StatusForbidden, utils.ForbiddenError)
		})
	}
}

// RequireOwnerOrAdmin authenticates the bearer and admits the owner of the
// resource named by the route variable param, and admins. The caller is
// stored in the request context.
func RequireOwnerOrAdmin(authz Authorizer, param string, owner services.OwnerFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetTokenFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, utils.UnauthorizedError)
				return
			}
			d, err := authz.AuthorizeResource(r.Context(), token, mux.Vars(r)[param], owner)
			switch {
			case err == nil:
			case errors.Is(err, services.ErrNotFound):
				utils.WriteError(w, http.StatusNotFound, utils.NotFoundError)
				return
			default:
				rejectToken(w, r, err)
				return
			}
			if !d.Allowed {
				LogWarn(r, "ownership check failed", "user_id", d.CallerID, "resource", mux.Vars(r)[param])
				utils.WriteError(w, http.StatusForbidden, utils.ForbiddenError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), d.Caller)))
		})
	}
}
