package access

import (
	"fmt"
	"sync"
)

// RoleKind identifies one of a fixed enumeration of role variants. Each kind
// carries its own fixed permission set; role instances hold no state of their
// own beyond the back-reference to their user.
type RoleKind string

var (
	roleKindsMu sync.RWMutex
	roleKinds   = make(map[RoleKind][]Permission)
)

// RegisterRoleKind declares a role kind and the permission set it confers.
// Kinds are registered once at startup; re-registering an existing kind is
// rejected so the catalog stays compile-time-fixed in practice.
func RegisterRoleKind(kind RoleKind, perms ...Permission) error {
	if kind == "" {
		return fmt.Errorf("%w: role kind is required", ErrInvalidInput)
	}
	roleKindsMu.Lock()
	defer roleKindsMu.Unlock()
	if _, exists := roleKinds[kind]; exists {
		return fmt.Errorf("%w: role kind %s already registered", ErrConflict, kind)
	}
	set := make([]Permission, 0, len(perms))
	for _, p := range perms {
		dup := false
		for _, existing := range set {
			if existing.Equal(p) {
				dup = true
				break
			}
		}
		if !dup {
			set = append(set, p)
		}
	}
	roleKinds[kind] = set
	return nil
}

// RoleKindRegistered reports whether the kind is known.
func RoleKindRegistered(kind RoleKind) bool {
	roleKindsMu.RLock()
	defer roleKindsMu.RUnlock()
	_, ok := roleKinds[kind]
	return ok
}

// RoleKindPermissions returns the fixed permission set a kind confers.
func RoleKindPermissions(kind RoleKind) []Permission {
	roleKindsMu.RLock()
	defer roleKindsMu.RUnlock()
	perms := roleKinds[kind]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// resetRoleKinds clears the registry. Only intended for test use.
func resetRoleKinds() {
	roleKindsMu.Lock()
	defer roleKindsMu.Unlock()
	roleKinds = make(map[RoleKind][]Permission)
}

// Role attaches a fixed capability label to a user. The user reference is
// non-owning: User.AddRole is the single mutation point that sets it, and the
// user's role collection is derived from that one direction.
type Role struct {
	ID   string   `json:"id,omitempty"`
	Kind RoleKind `json:"kind"`

	user *User
}

// NewRole constructs an unattached role of the given kind.
func NewRole(kind RoleKind) *Role {
	return &Role{Kind: kind}
}

// Permissions returns the fixed permission set this role confers, regardless
// of any stored data.
func (r *Role) Permissions() []Permission {
	return RoleKindPermissions(r.Kind)
}

// User returns the owning user, or nil for an unattached role.
func (r *Role) User() *User { return r.user }

// The following accessors forward identity and account-state queries to the
// owning user. They report zero values for an unattached role.

func (r *Role) Login() string {
	if r.user == nil {
		return ""
	}
	return r.user.Login
}

func (r *Role) Name() string {
	if r.user == nil {
		return ""
	}
	return r.user.Name
}

func (r *Role) Email() string {
	if r.user == nil {
		return ""
	}
	return r.user.Email
}

func (r *Role) Enabled() bool {
	return r.user != nil && r.user.Enabled
}

func (r *Role) Locked() bool {
	return r.user != nil && r.user.Locked
}

func (r *Role) Expired() bool {
	return r.user != nil && r.user.Expired
}

func (r *Role) CredentialsExpired() bool {
	return r.user != nil && r.user.CredentialsExpired
}

func (r *Role) LoggedIn() bool {
	return r.user != nil && r.user.LoggedIn
}
