package services

import (
	"context"
	"errors"

	"github.com/Setouprincely/automated-results-system-sub005/models"
)

// OwnerFunc resolves the owner id of a resource, e.g. a user profile or a
// registration record.
type OwnerFunc func(ctx context.Context, resourceID string) (ownerID string, err error)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed  bool
	IsAdmin  bool
	CallerID string
	Caller   *models.User
}

// Allowed grants access to admins and to the owner of the resource.
func Allowed(caller *models.User, ownerID string) bool {
	return caller != nil && (caller.IsAdmin() || caller.ID == ownerID)
}

// Access is the one place resource-scoped endpoints ask "may this bearer
// touch that?".
type Access struct {
	sessions *Sessions
}

// Authorize decodes token and decides access to a resource owned by ownerID.
func (a *Access) Authorize(ctx context.Context, token, ownerID string) (*Decision, error) {
	return a.AuthorizeResource(ctx, token, ownerID, func(_ context.Context, id string) (string, error) {
		return id, nil
	})
}

// AuthorizeResource is Authorize with the owner looked up through owner. The
// bearer is checked before the lookup so unauthenticated callers learn
// nothing about the resource. A missing resource is ErrNotFound for admins
// and a plain denial for everyone else.
func (a *Access) AuthorizeResource(ctx context.Context, token, resourceID string, owner OwnerFunc) (*Decision, error) {
	caller, _, err := a.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	ownerID, err := owner(ctx, resourceID)
	if errors.Is(err, ErrNotFound) && !caller.IsAdmin() {
		return decide(caller, ""), nil
	}
	if err != nil {
		return nil, err
	}
	return decide(caller, ownerID), nil
}

func decide(caller *models.User, ownerID string) *Decision {
	return &Decision{
		Allowed:  Allowed(caller, ownerID),
		IsAdmin:  caller.IsAdmin(),
		CallerID: caller.ID,
		Caller:   caller,
	}
}

// UserOwner resolves a user profile to itself.
func (c *Credentials) UserOwner(ctx context.Context, id string) (string, error) {
	user, err := c.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
