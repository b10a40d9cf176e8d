package access

import (
	"sort"
	"strings"
	"time"
)

// User is the aggregate root of the access model. It carries the assigned
// permission groups, the per-user removal list and the attached roles, and
// computes the effective permission set from them.
//
// The collections are mutated only through the Add/Remove methods so the
// no-duplicate and back-reference invariants hold at a single point; there
// are deliberately no bulk setters. The LoggedIn flag is owned by
// Service.Authenticate and Service.Logout; nothing else flips it.
type User struct {
	ID    string `json:"id,omitempty"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`

	// Password holds the encrypted form. The service encrypts before every
	// persist, so a raw value never reaches the store.
	Password string `json:"-"`

	Enabled            bool `json:"enabled"`
	Locked             bool `json:"locked"`
	Expired            bool `json:"expired"`
	CredentialsExpired bool `json:"credentials_expired"`
	LoggedIn           bool `json:"logged_in"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	permissionGroups   []*PermissionGroup
	removedPermissions []Permission
	roles              []*Role
}

// NewUser constructs an enabled user with every other flag cleared.
func NewUser(login, name, email string) *User {
	return &User{
		Login:   login,
		Name:    name,
		Email:   email,
		Enabled: true,
	}
}

// Equal reports whether two users denote the same principal. Users are
// compared by login only: two instances with the same login are the same
// principal even if every other field differs.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Login == other.Login
}

// AddPermissionGroup assigns a group to the user. Assigning a group the user
// already holds is a no-op.
func (u *User) AddPermissionGroup(g *PermissionGroup) {
	if g == nil {
		return
	}
	for _, existing := range u.permissionGroups {
		if existing.Name == g.Name {
			return
		}
	}
	u.permissionGroups = append(u.permissionGroups, g)
}

// RemovePermissionGroup unassigns the named group, if present.
func (u *User) RemovePermissionGroup(name string) {
	for i, g := range u.permissionGroups {
		if g.Name == name {
			u.permissionGroups = append(u.permissionGroups[:i], u.permissionGroups[i+1:]...)
			return
		}
	}
}

// PermissionGroups returns the user's assigned groups.
func (u *User) PermissionGroups() []*PermissionGroup {
	out := make([]*PermissionGroup, len(u.permissionGroups))
	copy(out, u.permissionGroups)
	return out
}

// HasPermissionGroup reports whether the named group is assigned.
func (u *User) HasPermissionGroup(name string) bool {
	for _, g := range u.permissionGroups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// AddRemovedPermission revokes a permission otherwise granted through a
// group. Revoking a permission already on the list is a no-op, and revoking
// one the user never held is inert.
func (u *User) AddRemovedPermission(p Permission) {
	for _, existing := range u.removedPermissions {
		if existing.Equal(p) {
			return
		}
	}
	u.removedPermissions = append(u.removedPermissions, p)
}

// RemovedPermissions returns the per-user revocation list.
func (u *User) RemovedPermissions() []Permission {
	out := make([]Permission, len(u.removedPermissions))
	copy(out, u.removedPermissions)
	return out
}

// AddRole attaches a role to the user and sets its back-reference. At most
// one role per kind is held: attaching a second role of a kind the user
// already holds is a no-op and the first attachment wins.
func (u *User) AddRole(r *Role) {
	if r == nil {
		return
	}
	if u.HasRole(r.Kind) {
		return
	}
	r.user = u
	u.roles = append(u.roles, r)
}

// Role returns the user's role of the given kind, if any.
func (u *User) Role(kind RoleKind) (*Role, bool) {
	for _, r := range u.roles {
		if r.Kind == kind {
			return r, true
		}
	}
	return nil, false
}

// HasRole reports whether the user holds a role of the given kind.
func (u *User) HasRole(kind RoleKind) bool {
	_, ok := u.Role(kind)
	return ok
}

// RemoveRolesOfKind detaches every role of the given kind. At most one
// should exist, but the removal sweeps defensively.
func (u *User) RemoveRolesOfKind(kind RoleKind) {
	kept := u.roles[:0]
	for _, r := range u.roles {
		if r.Kind == kind {
			r.user = nil
			continue
		}
		kept = append(kept, r)
	}
	u.roles = kept
}

// Roles returns the user's attached roles.
func (u *User) Roles() []*Role {
	out := make([]*Role, len(u.roles))
	copy(out, u.roles)
	return out
}

// Permissions resolves the user's effective permission set: the union of
// the permissions across every assigned group, minus the removal list,
// deduplicated and sorted case-insensitively by name. The result is a fresh
// slice computed on every call; it is never stored.
func (u *User) Permissions() []Permission {
	set := make(map[string]Permission)
	for _, g := range u.permissionGroups {
		for _, p := range g.Permissions() {
			set[strings.ToLower(p.Name)] = p
		}
	}
	for _, p := range u.removedPermissions {
		delete(set, strings.ToLower(p.Name))
	}
	out := make([]Permission, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// HasPermission reports whether the user holds at least one of the named
// permissions.
func (u *User) HasPermission(names ...string) bool {
	perms := u.Permissions()
	for _, name := range names {
		for _, p := range perms {
			if strings.EqualFold(p.Name, name) {
				return true
			}
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every named permission.
func (u *User) HasAllPermissions(names ...string) bool {
	perms := u.Permissions()
	for _, name := range names {
		found := false
		for _, p := range perms {
			if strings.EqualFold(p.Name, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
