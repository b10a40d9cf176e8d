package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	script := `create table a (id text);
insert into a values ('x;y');
insert into a values ('z');`

	stmts := splitStatements(script)
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3: %q", len(stmts), stmts)
	}
	if want := `insert into a values ('x;y');`; stmts[1] != "\n"+want {
		t.Fatalf("semicolon inside string split wrongly: %q", stmts[1])
	}
}

func TestApplyRunsPendingMigrationsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_second.up.sql": {Data: []byte(`create table b (id text);`)},
		"0001_first.up.sql":  {Data: []byte(`create table a (id text);`)},
	}

	mock.ExpectExec("create table if not exists schema_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_history").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_history").
		WithArgs("0001_first.up.sql", string(KindMigration), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_history").
		WithArgs("0002_second.up.sql", string(KindMigration), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n, err := NewRunner(db, fsys, nil).Apply(context.Background())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n != 2 {
		t.Fatalf("applied = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySkipsRecordedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_first.up.sql": {Data: []byte(`create table a (id text);`)},
	}

	mock.ExpectExec("create table if not exists schema_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_history").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	n, err := NewRunner(db, fsys, nil).Apply(context.Background())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n != 0 {
		t.Fatalf("applied = %d, want 0", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRollbackWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_history").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := NewRunner(db, fstest.MapFS{}, nil).Rollback(context.Background()); err == nil {
		t.Fatal("expected an error when nothing is applied")
	}
}

func TestSeedWithoutSeedFS(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	n, err := NewRunner(db, fstest.MapFS{}, nil).Seed(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("seed = (%d, %v), want (0, nil)", n, err)
	}
}
