package repository

import (
	"context"
	"errors"

	"github.com/systemsaholic/clerk-sync/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
	ErrRoleNotFound = errors.New("role not found")
)

// IdentityStore is the system of record for local user records. Email
// uniqueness is enforced here, not by callers; CreateUser and UpdateUser
// return ErrEmailExists when another record already holds the email.
//
// clerk_id is intentionally not unique at the store layer. Callers that
// act destructively on a clerk_id match re-verify the stored value first.
type IdentityStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByClerkID(ctx context.Context, clerkID string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// UnlinkUser clears the clerk_id association, keeping the record.
	UnlinkUser(ctx context.Context, id string) error

	// DeleteUser removes the record. Content owned by it is reassigned to
	// reassignTo when non-empty, else left ownerless.
	DeleteUser(ctx context.Context, id string, reassignTo string) error
}

// RoleRegistry manages the local role set.
type RoleRegistry interface {
	GetRole(ctx context.Context, name string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
}
