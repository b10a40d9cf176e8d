package access

import (
	"sort"
	"strings"
	"time"
)

const (
	// MinNameLength and MaxNameLength bound logins, permission names and
	// group names alike.
	MinNameLength = 2
	MaxNameLength = 50
)

const (
	// UserRolePermissionName is the base permission every user receives on
	// first save.
	UserRolePermissionName = "ROLE_USER"

	// AllUsersGroupName is the permission group every user belongs to. It is
	// created on demand the first time a user is saved.
	AllUsersGroupName = "All users"
)

// Permission is a named, atomic grantable capability. Identity, equality and
// ordering are all keyed on the name, case-insensitively; the surrogate id
// only exists for the storage layer.
type Permission struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Equal reports whether two permissions denote the same capability.
func (p Permission) Equal(other Permission) bool {
	return strings.EqualFold(p.Name, other.Name)
}

// Less orders permissions case-insensitively by name.
func (p Permission) Less(other Permission) bool {
	return strings.ToLower(p.Name) < strings.ToLower(other.Name)
}

// PermissionGroup is a named bundle of permissions assignable to users. The
// permission set is duplicate-free and iterates in ascending name order so
// displays and caches stay deterministic regardless of insertion order.
type PermissionGroup struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Shared    bool      `json:"shared,omitempty"`
	Owner     *UserGroup `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	permissions []Permission
}

// NewPermissionGroup constructs a group with the given permissions,
// deduplicated and sorted.
func NewPermissionGroup(name string, perms ...Permission) *PermissionGroup {
	g := &PermissionGroup{Name: name}
	for _, p := range perms {
		g.AddPermission(p)
	}
	return g
}

// AddPermission inserts a permission, keeping the set duplicate-free and
// name-sorted. Adding a permission the group already holds is a no-op.
func (g *PermissionGroup) AddPermission(p Permission) {
	for _, existing := range g.permissions {
		if existing.Equal(p) {
			return
		}
	}
	g.permissions = append(g.permissions, p)
	sort.Slice(g.permissions, func(i, j int) bool {
		return g.permissions[i].Less(g.permissions[j])
	})
}

// RemovePermission drops the named permission if present.
func (g *PermissionGroup) RemovePermission(name string) {
	for i, p := range g.permissions {
		if strings.EqualFold(p.Name, name) {
			g.permissions = append(g.permissions[:i], g.permissions[i+1:]...)
			return
		}
	}
}

// Permissions returns the group's permissions in ascending name order. The
// returned slice is a copy.
func (g *PermissionGroup) Permissions() []Permission {
	out := make([]Permission, len(g.permissions))
	copy(out, g.permissions)
	return out
}

// Contains reports whether the group grants the named permission.
func (g *PermissionGroup) Contains(name string) bool {
	for _, p := range g.permissions {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// UserGroup is a named collection of users. It only participates in this
// subsystem as the optional owner of a permission group.
type UserGroup struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	members []*User
}

// AddMember adds a user to the group, keyed by login.
func (g *UserGroup) AddMember(u *User) {
	if u == nil {
		return
	}
	for _, m := range g.members {
		if m.Equal(u) {
			return
		}
	}
	g.members = append(g.members, u)
}

// RemoveMember drops the user with the given login, if present.
func (g *UserGroup) RemoveMember(login string) {
	for i, m := range g.members {
		if m.Login == login {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return
		}
	}
}

// Members returns the group's users.
func (g *UserGroup) Members() []*User {
	out := make([]*User, len(g.members))
	copy(out, g.members)
	return out
}

// ValidName reports whether a login, permission name or group name falls
// inside the accepted length bounds.
func ValidName(name string) bool {
	return len(name) >= MinNameLength && len(name) <= MaxNameLength
}
