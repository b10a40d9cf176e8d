package pg

import (
	"context"
	"database/sql"
	"errors"

	"gatekeep.org/internal/access"
	"gatekeep.org/internal/ids"
)

type permissionStore struct {
	s *Store
}

func (st *permissionStore) FindByName(ctx context.Context, name string) (access.Permission, error) {
	var p access.Permission
	err := st.s.db.QueryRowContext(ctx,
		`select id, name, created_at from permissions where name = $1`, name).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Permission{}, access.ErrNotFound
	}
	if err != nil {
		return access.Permission{}, err
	}
	return p, nil
}

// Ensure is create-or-fetch under the unique name constraint, so concurrent
// first-time saves converge on one row.
func (st *permissionStore) Ensure(ctx context.Context, name string) (access.Permission, error) {
	_, err := st.s.db.ExecContext(ctx, `
		insert into permissions (id, name) values ($1, $2)
		on conflict (name) do nothing
	`, ids.New(), name)
	if err != nil {
		return access.Permission{}, err
	}
	return st.FindByName(ctx, name)
}

type permissionGroupStore struct {
	s *Store
}

func (st *permissionGroupStore) FindByName(ctx context.Context, name string) (*access.PermissionGroup, error) {
	row := st.s.db.QueryRowContext(ctx,
		`select id, name, shared, created_at from permission_groups where name = $1`, name)
	return st.scanGroup(ctx, row)
}

func (st *permissionGroupStore) Ensure(ctx context.Context, name string, perms ...access.Permission) (*access.PermissionGroup, error) {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into permission_groups (id, name) values ($1, $2)
		on conflict (name) do nothing
	`, ids.New(), name); err != nil {
		return nil, err
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permission_group_permissions (group_id, permission_id)
			select g.id, p.id from permission_groups g, permissions p
			where g.name = $1 and p.name = $2
			on conflict do nothing
		`, name, p.Name); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st.FindByName(ctx, name)
}

func (st *permissionGroupStore) FindByOwner(ctx context.Context, userGroupName string) ([]*access.PermissionGroup, error) {
	rows, err := st.s.db.QueryContext(ctx, `
		select g.id, g.name, g.shared, g.created_at
		from permission_groups g
		join user_groups ug on ug.id = g.owner_user_group_id
		where ug.name = $1
		order by g.name
	`, userGroupName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*access.PermissionGroup
	for rows.Next() {
		g, err := st.scanGroup(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (st *permissionGroupStore) scanGroup(ctx context.Context, row interface{ Scan(...any) error }) (*access.PermissionGroup, error) {
	var (
		id, name string
		shared   bool
		created  sql.NullTime
	)
	if err := row.Scan(&id, &name, &shared, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, err
	}
	g := access.NewPermissionGroup(name)
	g.ID = id
	g.Shared = shared
	g.CreatedAt = created.Time

	perms, err := st.s.db.QueryContext(ctx, `
		select p.id, p.name
		from permission_group_permissions gp
		join permissions p on p.id = gp.permission_id
		where gp.group_id = $1
		order by p.name
	`, id)
	if err != nil {
		return nil, err
	}
	defer perms.Close()
	for perms.Next() {
		var p access.Permission
		if err := perms.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		g.AddPermission(p)
	}
	return g, perms.Err()
}

type userGroupStore struct {
	s *Store
}

func (st *userGroupStore) FindByName(ctx context.Context, name string) (*access.UserGroup, error) {
	var g access.UserGroup
	err := st.s.db.QueryRowContext(ctx,
		`select id, name, created_at from user_groups where name = $1`, name).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (st *userGroupStore) Create(ctx context.Context, g *access.UserGroup) error {
	if g.ID == "" {
		g.ID = ids.New()
	}
	_, err := st.s.db.ExecContext(ctx,
		`insert into user_groups (id, name) values ($1, $2)`, g.ID, g.Name)
	if isUniqueViolation(err) {
		return access.ErrConflict
	}
	return err
}
