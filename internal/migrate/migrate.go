// Package migrate applies SQL schema migrations and seed files from an
// fs.FS. Migrations are ordered by filename, executed inside a transaction
// and recorded in a bookkeeping table so reruns are no-ops.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const historyTable = "schema_history"

// Kind distinguishes structural migrations from idempotent seed data.
type Kind string

const (
	KindMigration Kind = "migration"
	KindSeed      Kind = "seed"
)

// Runner executes SQL files against a database.
type Runner struct {
	db    *sql.DB
	fsys  fs.FS
	seeds fs.FS
}

// NewRunner constructs a Runner. seeds may be nil when a deployment carries
// no seed data.
func NewRunner(db *sql.DB, migrations, seeds fs.FS) *Runner {
	return &Runner{db: db, fsys: migrations, seeds: seeds}
}

// Apply runs every pending .up.sql migration in filename order.
func (r *Runner) Apply(ctx context.Context) (int, error) {
	return r.run(ctx, r.fsys, ".up.sql", KindMigration)
}

// Seed runs every pending seed .sql file in filename order.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if r.seeds == nil {
		return 0, nil
	}
	n, err := r.run(ctx, r.seeds, ".sql", KindSeed)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return n, err
}

// Rollback reverts the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Rollback(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("nothing to roll back")
	}
	last := applied[len(applied)-1]
	downName := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	script, err := fs.ReadFile(r.fsys, downName)
	if err != nil {
		return fmt.Errorf("missing down migration %s: %w", downName, err)
	}
	if err := r.execScript(ctx, string(script)); err != nil {
		return fmt.Errorf("roll back %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		`delete from `+historyTable+` where name = $1`, last)
	return err
}

// Applied returns applied migration names in application order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind = $1 order by applied_at, name`,
		KindMigration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) run(ctx context.Context, fsys fs.FS, suffix string, kind Kind) (int, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return 0, err
	}
	done, err := r.recorded(ctx, kind)
	if err != nil {
		return 0, err
	}
	names, err := listSQL(fsys, suffix)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		if done[name] {
			continue
		}
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}
		if err := r.execScript(ctx, string(script)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`insert into `+historyTable+` (name, kind, applied_at) values ($1, $2, $3)`,
			name, kind, time.Now().UTC()); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		create table if not exists `+historyTable+` (
			name       text not null,
			kind       text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		)`)
	return err
}

func (r *Runner) recorded(ctx context.Context, kind Kind) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind = $1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// execScript runs one file as a single transaction, splitting on
// semicolons outside string literals.
func (r *Runner) execScript(ctx context.Context, script string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(script) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range script {
		switch r {
		case '\'':
			inString = !inString
			current.WriteRune(r)
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
