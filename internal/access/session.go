package access

import "sync"

// Session holds the currently authenticated user for one caller scope and
// answers convenience permission queries on their behalf. Authenticate
// publishes the user here and Logout clears it; every query reports
// false/absent while no user is published.
type Session struct {
	mu   sync.RWMutex
	user *User
}

// NewSession returns an empty session.
func NewSession() *Session { return &Session{} }

// SetUser publishes the authenticated user.
func (s *Session) SetUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// User returns the current user, if one is published.
func (s *Session) User() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, false
	}
	return s.user, true
}

// Clear removes the published user.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

// IsLoggedIn reports whether an authenticated user is published.
func (s *Session) IsLoggedIn() bool {
	_, ok := s.User()
	return ok
}

// HasPermission reports whether the current user holds at least one of the
// named permissions. Always false for an unauthenticated caller.
func (s *Session) HasPermission(names ...string) bool {
	u, ok := s.User()
	if !ok {
		return false
	}
	return u.HasPermission(names...)
}

// HasAllPermissions reports whether the current user holds every named
// permission. Always false for an unauthenticated caller.
func (s *Session) HasAllPermissions(names ...string) bool {
	u, ok := s.User()
	if !ok {
		return false
	}
	return u.HasAllPermissions(names...)
}
