package routes

import (
	"net/http"

	"github.com/Setouprincely/automated-results-system-sub005/middlewares"
	"github.com/Setouprincely/automated-results-system-sub005/models"
	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/gorilla/mux"
)

// UpdateUserRequest is a partial profile update. Status and emailVerified
// are honoured for admins only.
type UpdateUserRequest struct {
	FullName      *string        `json:"fullName" validate:"omitempty,min=2,max=128"`
	Phone         *string        `json:"phone" validate:"omitempty,max=32"`
	School        *string        `json:"school" validate:"omitempty,max=255"`
	ExamLevel     *string        `json:"examLevel" validate:"omitempty,max=32"`
	Subject       *string        `json:"subject" validate:"omitempty,max=128"`
	Status        *models.Status `json:"status" validate:"omitempty,oneof=pending confirmed suspended"`
	EmailVerified *bool          `json:"emailVerified"`
}

func (u UpdateUserRequest) update() models.UserUpdate {
	return models.UserUpdate{
		FullName:      u.FullName,
		Phone:         u.Phone,
		School:        u.School,
		ExamLevel:     u.ExamLevel,
		Subject:       u.Subject,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
	}
}

// UserRouter registers the profile endpoints on the root router.
func UserRouter(r *mux.Router, h *Handler) {
	requireAuth := middlewares.RequireAuth(h.svc.Sessions)
	adminOnly := middlewares.RequireRole(models.RoleAdmin)
	ownerOrAdmin := middlewares.RequireOwnerOrAdmin(h.svc.Access, "id", h.svc.Credentials.UserOwner)

	r.Handle("/users", requireAuth(adminOnly(http.HandlerFunc(h.ListUsers)))).Methods(http.MethodGet)
	r.Handle("/users/{id}", ownerOrAdmin(http.HandlerFunc(h.GetUser))).Methods(http.MethodGet)
	r.Handle("/users/{id}", ownerOrAdmin(http.HandlerFunc(h.UpdateUser))).Methods(http.MethodPatch)
	r.Handle("/users/{id}", requireAuth(adminOnly(http.HandlerFunc(h.DeleteUser)))).Methods(http.MethodDelete)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Credentials.ListUsers(r.Context(), models.Role(r.URL.Query().Get("userType")))
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, UsersResponse{Envelope: utils.OK(""), Users: users})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Credentials.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, UserResponse{Envelope: utils.OK(""), User: user})
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeValidBody[UpdateUserRequest](r)
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	caller := middlewares.UserFromContext(r.Context())
	user, err := h.svc.Credentials.UpdateUser(r.Context(), mux.Vars(r)["id"], req.update(), caller.IsAdmin())
	if err != nil {
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogInfo(r, "user updated", "user_id", user.ID, "by", caller.ID)
	utils.WriteJSON(w, http.StatusOK, UserResponse{Envelope: utils.OK(""), User: user})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller := middlewares.UserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	if err := h.svc.Credentials.DeleteUser(r.Context(), caller.ID, id); err != nil {
		GenericAuthError(w, r, err)
		return
	}
	middlewares.LogInfo(r, "user deleted", "user_id", id, "by", caller.ID)
	utils.WriteJSON(w, http.StatusOK, utils.OK(utils.UserDeleted))
}
