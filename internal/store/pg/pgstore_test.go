package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"gatekeep.org/internal/access"
)

func newMockStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, opts...), mock
}

func userRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "login", "name", "email", "password",
		"enabled", "locked", "expired", "credentials_expired", "logged_in",
		"created_at", "updated_at",
	}).AddRow("u-1", "jdoe", "John Doe", "jdoe@example.com", "cafe",
		true, false, false, false, false, now, now)
}

func expectAggregateLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("select g.id, g.name, g.shared, p.id, p.name").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"gid", "gname", "shared", "pid", "pname"}).
			AddRow("g-1", access.AllUsersGroupName, false, "p-1", access.UserRolePermissionName))
	mock.ExpectQuery("select p.id, p.name.*from user_removed_permissions").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mock.ExpectQuery("select id, kind from roles").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind"}))
}

func TestFindByLoginAndPassword(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from users where login = .+ and password = .+").
		WithArgs("jdoe", "cafe").
		WillReturnRows(userRows())
	expectAggregateLoad(mock)

	u, err := store.Users(context.Background()).FindByLoginAndPassword(context.Background(), "jdoe", "cafe")
	if err != nil {
		t.Fatalf("FindByLoginAndPassword: %v", err)
	}
	if u.Login != "jdoe" || !u.Enabled {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.HasPermission(access.UserRolePermissionName) {
		t.Fatalf("aggregate load must attach group permissions")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByLoginAndPasswordNoMatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from users where login = .+ and password = .+").
		WithArgs("jdoe", "wrong").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users(context.Background()).FindByLoginAndPassword(context.Background(), "jdoe", "wrong")
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCaseInsensitiveLoginLookup(t *testing.T) {
	store, mock := newMockStore(t, WithCaseInsensitiveLogins())

	mock.ExpectQuery(`select exists.*lower\(login\) = lower\(\$1\)`).
		WithArgs("JDoe").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Users(context.Background()).ExistsWithLogin(context.Background(), "JDoe")
	if err != nil || !ok {
		t.Fatalf("ExistsWithLogin = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetLoggedInConditionalUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set logged_in = true.*logged_in = false").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	transitioned, err := store.Users(context.Background()).SetLoggedIn(context.Background(), "u-1", true)
	if err != nil || !transitioned {
		t.Fatalf("SetLoggedIn = %v, %v", transitioned, err)
	}

	// Second caller loses the compare-and-set.
	mock.ExpectExec("update users set logged_in = true.*logged_in = false").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	transitioned, err = store.Users(context.Background()).SetLoggedIn(context.Background(), "u-1", true)
	if err != nil || transitioned {
		t.Fatalf("expected no transition, got %v, %v", transitioned, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsurePermissionIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into permissions .*on conflict .*do nothing").
		WithArgs(sqlmock.AnyArg(), access.UserRolePermissionName).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, name, created_at from permissions").
		WithArgs(access.UserRolePermissionName).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("p-1", access.UserRolePermissionName, time.Now().UTC()))

	p, err := store.Permissions(context.Background()).Ensure(context.Background(), access.UserRolePermissionName)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if p.ID != "p-1" || p.Name != access.UserRolePermissionName {
		t.Fatalf("unexpected permission: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
