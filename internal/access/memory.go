package access

import (
	"context"
	"sync"
	"time"

	"gatekeep.org/internal/ids"
)

// MemoryStore implements Store with in-process concurrency safety. It backs
// development deployments without a database and the HTTP layer's tests;
// production wiring uses the PostgreSQL store.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*User // keyed by login
	perms      map[string]Permission
	groups     map[string]*PermissionGroup
	userGroups map[string]*UserGroup
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*User),
		perms:      make(map[string]Permission),
		groups:     make(map[string]*PermissionGroup),
		userGroups: make(map[string]*UserGroup),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore             { return (*memoryUsers)(m) }
func (m *MemoryStore) Permissions(context.Context) PermissionStore { return (*memoryPerms)(m) }
func (m *MemoryStore) PermissionGroups(context.Context) PermissionGroupStore {
	return (*memoryGroups)(m)
}
func (m *MemoryStore) UserGroups(context.Context) UserGroupStore { return (*memoryUserGroups)(m) }

type memoryUsers MemoryStore

func (m *memoryUsers) FindByLogin(_ context.Context, login string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[login]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memoryUsers) FindByLoginAndPassword(_ context.Context, login, encryptedPassword string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[login]
	if !ok || u.Password != encryptedPassword {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memoryUsers) FindByRoleKind(_ context.Context, kind RoleKind) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.HasRole(kind) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryUsers) ExistsWithLogin(_ context.Context, login string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[login]
	return ok, nil
}

func (m *memoryUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Login]; ok {
		return ErrConflict
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.Login] = u
	return nil
}

func (m *memoryUsers) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Login]; !ok {
		return ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[u.Login] = u
	return nil
}

func (m *memoryUsers) SetLoggedIn(_ context.Context, userID string, loggedIn bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID != userID {
			continue
		}
		if loggedIn {
			if u.LoggedIn {
				return false, nil
			}
			u.LoggedIn = true
			return true, nil
		}
		u.LoggedIn = false
		return true, nil
	}
	return false, ErrNotFound
}

type memoryPerms MemoryStore

func (m *memoryPerms) FindByName(_ context.Context, name string) (Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.perms[name]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryPerms) Ensure(_ context.Context, name string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.perms[name]; ok {
		return p, nil
	}
	p := Permission{ID: ids.New(), Name: name, CreatedAt: time.Now().UTC()}
	m.perms[name] = p
	return p, nil
}

type memoryGroups MemoryStore

func (m *memoryGroups) FindByName(_ context.Context, name string) (*PermissionGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[name]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (m *memoryGroups) Ensure(_ context.Context, name string, perms ...Permission) (*PermissionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[name]; ok {
		return g, nil
	}
	g := NewPermissionGroup(name, perms...)
	g.ID = ids.New()
	g.CreatedAt = time.Now().UTC()
	m.groups[name] = g
	return g, nil
}

func (m *memoryGroups) FindByOwner(_ context.Context, userGroupName string) ([]*PermissionGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PermissionGroup
	for _, g := range m.groups {
		if g.Owner != nil && g.Owner.Name == userGroupName {
			out = append(out, g)
		}
	}
	return out, nil
}

type memoryUserGroups MemoryStore

func (m *memoryUserGroups) FindByName(_ context.Context, name string) (*UserGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.userGroups[name]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (m *memoryUserGroups) Create(_ context.Context, g *UserGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userGroups[g.Name]; ok {
		return ErrConflict
	}
	if g.ID == "" {
		g.ID = ids.New()
	}
	g.CreatedAt = time.Now().UTC()
	m.userGroups[g.Name] = g
	return nil
}
