package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gatekeep.org/internal/access"
)

const pgErrUniqueViolation = "23505"

// Store implements access.Store on PostgreSQL through the pgx stdlib driver.
type Store struct {
	db *sql.DB

	// caseInsensitiveLogins switches login lookups to lower(login)
	// comparison. Off by default: login identity is case-sensitive unless a
	// deployment explicitly opts out.
	caseInsensitiveLogins bool
}

var _ access.Store = (*Store)(nil)

// Option configures Store behavior at Open time.
type Option func(*Store)

// WithCaseInsensitiveLogins makes login lookups and existence checks ignore
// case. Pair it with a functional unique index on lower(login).
func WithCaseInsensitiveLogins() Option {
	return func(s *Store) { s.caseInsensitiveLogins = true }
}

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

// NewStore wraps an existing connection pool. Used by tests with sqlmock.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) access.UserStore { return &userStore{s} }

func (s *Store) Permissions(context.Context) access.PermissionStore { return &permissionStore{s} }

func (s *Store) PermissionGroups(context.Context) access.PermissionGroupStore {
	return &permissionGroupStore{s}
}

func (s *Store) UserGroups(context.Context) access.UserGroupStore { return &userGroupStore{s} }

func (s *Store) loginPredicate(column string) string {
	if s.caseInsensitiveLogins {
		return "lower(" + column + ") = lower($1)"
	}
	return column + " = $1"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
