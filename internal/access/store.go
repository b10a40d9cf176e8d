package access

import "context"

// Store describes the persistence operations this package requires. Lookups
// return ErrNotFound for missing rows; creates surface ErrConflict on
// unique-constraint violations. Everything else propagates unchanged.
type Store interface {
	Users(ctx context.Context) UserStore
	Permissions(ctx context.Context) PermissionStore
	PermissionGroups(ctx context.Context) PermissionGroupStore
	UserGroups(ctx context.Context) UserGroupStore
}

// UserStore manages user aggregates, loaded with their permission groups,
// removal lists and roles.
type UserStore interface {
	FindByLogin(ctx context.Context, login string) (*User, error)
	// FindByLoginAndPassword matches login and encrypted password in one
	// combined lookup, so a caller cannot tell an unknown login from a wrong
	// password.
	FindByLoginAndPassword(ctx context.Context, login, encryptedPassword string) (*User, error)
	FindByRoleKind(ctx context.Context, kind RoleKind) ([]*User, error)
	ExistsWithLogin(ctx context.Context, login string) (bool, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	// SetLoggedIn flips the logged-in flag. Setting it true is conditional on
	// the stored flag being false and reports whether the row transitioned,
	// which closes the check-then-act race between concurrent logins for the
	// same account.
	SetLoggedIn(ctx context.Context, userID string, loggedIn bool) (bool, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	FindByName(ctx context.Context, name string) (Permission, error)
	// Ensure creates the named permission if absent and returns it either
	// way. Idempotent under the unique-name constraint, including across
	// concurrent callers.
	Ensure(ctx context.Context, name string) (Permission, error)
}

// PermissionGroupStore manages permission groups.
type PermissionGroupStore interface {
	FindByName(ctx context.Context, name string) (*PermissionGroup, error)
	// Ensure creates the named group with the given permissions if absent and
	// returns it either way, with the same idempotence contract as
	// PermissionStore.Ensure.
	Ensure(ctx context.Context, name string, perms ...Permission) (*PermissionGroup, error)
	FindByOwner(ctx context.Context, userGroupName string) ([]*PermissionGroup, error)
}

// UserGroupStore manages user groups.
type UserGroupStore interface {
	FindByName(ctx context.Context, name string) (*UserGroup, error)
	Create(ctx context.Context, g *UserGroup) error
}
