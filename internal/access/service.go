package access

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const randomPasswordLength = 7

// Service authenticates credentials, enforces account-state and session
// policy, and applies the save policy for new and updated users. It owns the
// LoggedIn flag: Authenticate is the only place it is set, Logout the only
// place it is cleared.
type Service struct {
	store     Store
	encrypter PasswordEncrypter
	session   *Session

	allowSimultaneousLogins bool
	now                     func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSimultaneousLogins controls whether an account that is already logged
// in may authenticate again. The flag is process-wide and fixed at
// construction. Disallowed by default.
func WithSimultaneousLogins(allow bool) ServiceOption {
	return func(s *Service) error {
		s.allowSimultaneousLogins = allow
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service. Store, encrypter and session are all
// required.
func NewService(store Store, encrypter PasswordEncrypter, session *Session, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if encrypter == nil {
		return nil, fmt.Errorf("%w: password encrypter is required", ErrInvalidInput)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidInput)
	}
	svc := &Service{
		store:     store,
		encrypter: encrypter,
		session:   session,
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Session returns the session this service publishes into.
func (s *Service) Session() *Session { return s.session }

// Authenticate validates the login/password pair and the account state, then
// marks the user logged in and publishes them into the session.
//
// The account-state gates run strictly after a successful credential match
// and in a fixed order: credentials-expired, locked, disabled, then the
// simultaneous-login policy. A locked and disabled account reports locked.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	encrypted := s.encrypter.Encrypt(password)

	user, err := s.store.Users(ctx).FindByLoginAndPassword(ctx, login, encrypted)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	if user.CredentialsExpired {
		return nil, ErrCredentialsExpired
	}
	if user.Locked {
		return nil, ErrAccountLocked
	}
	if !user.Enabled {
		return nil, ErrAccountDisabled
	}

	if user.LoggedIn {
		if !s.allowSimultaneousLogins {
			return nil, ErrSimultaneousLogin
		}
	} else {
		transitioned, err := s.store.Users(ctx).SetLoggedIn(ctx, user.ID, true)
		if err != nil {
			return nil, err
		}
		if !transitioned && !s.allowSimultaneousLogins {
			// Another caller logged this account in between our read and
			// write; under the single-session policy they win.
			return nil, ErrSimultaneousLogin
		}
		user.LoggedIn = true
		user.UpdatedAt = s.now().UTC()
	}

	s.session.SetUser(user)
	return user, nil
}

// Logout clears the user's logged-in flag, persists it and clears the
// session.
func (s *Service) Logout(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if _, err := s.store.Users(ctx).SetLoggedIn(ctx, user.ID, false); err != nil {
		return err
	}
	user.LoggedIn = false
	user.UpdatedAt = s.now().UTC()
	s.session.Clear()
	return nil
}

// SaveUser persists a new user under the save policy: the base permission
// and the all-users group are ensured to exist, the group is attached if
// absent, a missing password is replaced with a random throwaway value, and
// the password always passes through the encrypter before hitting the store.
func (s *Service) SaveUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if !ValidName(user.Login) {
		return fmt.Errorf("%w: login must be %d-%d characters", ErrInvalidInput, MinNameLength, MaxNameLength)
	}

	group, err := s.EnsureBasicAccess(ctx)
	if err != nil {
		return err
	}
	if !user.HasPermissionGroup(group.Name) {
		user.AddPermissionGroup(group)
	}

	if user.Password == "" {
		pw, err := s.GenerateRandomPassword()
		if err != nil {
			return err
		}
		user.Password = pw
	}
	user.Password = s.encrypter.Encrypt(user.Password)

	return s.store.Users(ctx).Create(ctx, user)
}

// UpdateUser persists changes to an existing user. The password is
// re-encrypted unconditionally; the encrypter's idempotence is what keeps an
// already-encrypted value from being hashed twice.
func (s *Service) UpdateUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	user.Password = s.encrypter.Encrypt(user.Password)
	return s.store.Users(ctx).Update(ctx, user)
}

// EnsureBasicAccess makes sure the base user permission and the all-users
// group exist, creating them on demand by name. The store's unique-name
// constraints make this idempotent across concurrent callers and service
// instances; no result is cached in-process.
func (s *Service) EnsureBasicAccess(ctx context.Context) (*PermissionGroup, error) {
	perm, err := s.store.Permissions(ctx).Ensure(ctx, UserRolePermissionName)
	if err != nil {
		return nil, err
	}
	return s.store.PermissionGroups(ctx).Ensure(ctx, AllUsersGroupName, perm)
}

// GenerateRandomPassword returns a throwaway password of exactly 7 uniformly
// random lowercase ASCII letters. At roughly 33 bits of entropy it is a
// temporary value the user is expected to change, not a long-term secret.
func (s *Service) GenerateRandomPassword() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, randomPasswordLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		buf[i] = letters[n.Int64()]
	}
	return string(buf), nil
}

// SetRandomPassword generates a fresh random password, assigns it, persists
// the user re-encrypted and returns the plaintext. This is the one place a
// plaintext password is handed back to a caller, so it can be communicated
// to the user out-of-band.
func (s *Service) SetRandomPassword(ctx context.Context, user *User) (string, error) {
	if user == nil {
		return "", fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	pw, err := s.GenerateRandomPassword()
	if err != nil {
		return "", err
	}
	user.Password = pw
	if err := s.UpdateUser(ctx, user); err != nil {
		return "", err
	}
	return pw, nil
}

// FindByLogin loads a user aggregate by login.
func (s *Service) FindByLogin(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).FindByLogin(ctx, login)
}

// ExistsWithLogin reports whether a user with the given login exists. Case
// sensitivity is the store's explicit configuration choice.
func (s *Service) ExistsWithLogin(ctx context.Context, login string) (bool, error) {
	if login == "" {
		return false, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).ExistsWithLogin(ctx, login)
}

// FindByRoleKind loads every user holding a role of the given kind.
func (s *Service) FindByRoleKind(ctx context.Context, kind RoleKind) ([]*User, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: role kind is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).FindByRoleKind(ctx, kind)
}
