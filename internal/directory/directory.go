// Package directory resolves users for notification delivery. The escalation
// worker looks up step assignees by id and role fallbacks by role name; both
// lookups are tenant-scoped and only ever return active users.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no matching user exists for the tenant.
var ErrNotFound = errors.New("user not found")

// User is a directory entry. Email may be blank for service accounts;
// recipient resolution skips blank emails.
type User struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenantId"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Active   bool      `json:"active"`
}

// Store is the user lookup contract.
type Store interface {
	// FindByID loads one active user.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error)

	// UsersByIDs returns the active users among the given ids. Missing ids
	// are silently omitted.
	UsersByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*User, error)

	// UsersByRole returns active users holding the given role name,
	// case-insensitively.
	UsersByRole(ctx context.Context, tenantID uuid.UUID, role string) ([]*User, error)

	// Create persists a user.
	Create(ctx context.Context, u *User) error
}
