package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gatekeep.org/internal/access"
	"gatekeep.org/internal/ids"
)

type userStore struct {
	s *Store
}

const userColumns = `id, login, name, email, password, enabled, locked, expired, credentials_expired, logged_in, created_at, updated_at`

// qualify prefixes every column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}

func scanUser(row interface{ Scan(...any) error }) (*access.User, error) {
	var (
		u     access.User
		email sql.NullString
	)
	err := row.Scan(&u.ID, &u.Login, &u.Name, &email, &u.Password,
		&u.Enabled, &u.Locked, &u.Expired, &u.CredentialsExpired, &u.LoggedIn,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

func (st *userStore) FindByLogin(ctx context.Context, login string) (*access.User, error) {
	row := st.s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where `+st.s.loginPredicate("login"), login)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := st.loadAggregate(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (st *userStore) FindByLoginAndPassword(ctx context.Context, login, encryptedPassword string) (*access.User, error) {
	row := st.s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where `+st.s.loginPredicate("login")+` and password = $2`,
		login, encryptedPassword)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := st.loadAggregate(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (st *userStore) FindByRoleKind(ctx context.Context, kind access.RoleKind) ([]*access.User, error) {
	rows, err := st.s.db.QueryContext(ctx, `
		select `+qualify(userColumns, "u")+`
		from users u
		join roles r on r.user_id = u.id
		where r.kind = $1
		order by u.login
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*access.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range out {
		if err := st.loadAggregate(ctx, u); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (st *userStore) ExistsWithLogin(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := st.s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where `+st.s.loginPredicate("login")+`)`, login).Scan(&exists)
	return exists, err
}

func (st *userStore) Create(ctx context.Context, u *access.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into users (id, login, name, email, password, enabled, locked, expired, credentials_expired, logged_in)
		values ($1, $2, $3, nullif($4, ''), $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Login, u.Name, u.Email, u.Password,
		u.Enabled, u.Locked, u.Expired, u.CredentialsExpired, u.LoggedIn)
	if err != nil {
		if isUniqueViolation(err) {
			return access.ErrConflict
		}
		return err
	}
	if err := st.writeAssociations(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *userStore) Update(ctx context.Context, u *access.User) error {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users
		set name = $2, email = nullif($3, ''), password = $4,
		    enabled = $5, locked = $6, expired = $7, credentials_expired = $8,
		    updated_at = now()
		where id = $1
	`, u.ID, u.Name, u.Email, u.Password,
		u.Enabled, u.Locked, u.Expired, u.CredentialsExpired)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return access.ErrNotFound
	}
	if err := st.writeAssociations(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *userStore) SetLoggedIn(ctx context.Context, userID string, loggedIn bool) (bool, error) {
	// The true transition is conditional on the stored flag: two concurrent
	// logins race on read-then-write, and only the caller whose update
	// matches logged_in=false wins the row.
	query := `update users set logged_in = true, updated_at = now() where id = $1 and logged_in = false`
	if !loggedIn {
		query = `update users set logged_in = false, updated_at = now() where id = $1`
	}
	res, err := st.s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// writeAssociations replaces the user's group assignments, removal list and
// roles with the aggregate's current state.
func (st *userStore) writeAssociations(ctx context.Context, tx *sql.Tx, u *access.User) error {
	if _, err := tx.ExecContext(ctx, `delete from user_permission_groups where user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, g := range u.PermissionGroups() {
		if _, err := tx.ExecContext(ctx, `
			insert into user_permission_groups (user_id, group_id)
			select $1, id from permission_groups where name = $2
			on conflict do nothing
		`, u.ID, g.Name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from user_removed_permissions where user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, p := range u.RemovedPermissions() {
		if _, err := tx.ExecContext(ctx, `
			insert into user_removed_permissions (user_id, permission_id)
			select $1, id from permissions where name = $2
			on conflict do nothing
		`, u.ID, p.Name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `delete from roles where user_id = $1`, u.ID); err != nil {
		return err
	}
	for _, r := range u.Roles() {
		id := r.ID
		if id == "" {
			id = ids.New()
			r.ID = id
		}
		if _, err := tx.ExecContext(ctx, `
			insert into roles (id, user_id, kind) values ($1, $2, $3)
			on conflict (user_id, kind) do nothing
		`, id, u.ID, string(r.Kind)); err != nil {
			return err
		}
	}
	return nil
}

// loadAggregate fills the user's permission groups (with their permissions),
// removed permissions and roles.
func (st *userStore) loadAggregate(ctx context.Context, u *access.User) error {
	rows, err := st.s.db.QueryContext(ctx, `
		select g.id, g.name, g.shared, p.id, p.name
		from user_permission_groups ug
		join permission_groups g on g.id = ug.group_id
		join permission_group_permissions gp on gp.group_id = g.id
		join permissions p on p.id = gp.permission_id
		where ug.user_id = $1
		order by g.name, p.name
	`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	groups := make(map[string]*access.PermissionGroup)
	for rows.Next() {
		var (
			gid, gname, pid, pname string
			shared                 bool
		)
		if err := rows.Scan(&gid, &gname, &shared, &pid, &pname); err != nil {
			return err
		}
		g, ok := groups[gid]
		if !ok {
			g = access.NewPermissionGroup(gname)
			g.ID = gid
			g.Shared = shared
			groups[gid] = g
			u.AddPermissionGroup(g)
		}
		g.AddPermission(access.Permission{ID: pid, Name: pname})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	removed, err := st.s.db.QueryContext(ctx, `
		select p.id, p.name
		from user_removed_permissions up
		join permissions p on p.id = up.permission_id
		where up.user_id = $1
		order by p.name
	`, u.ID)
	if err != nil {
		return err
	}
	defer removed.Close()
	for removed.Next() {
		var p access.Permission
		if err := removed.Scan(&p.ID, &p.Name); err != nil {
			return err
		}
		u.AddRemovedPermission(p)
	}
	if err := removed.Err(); err != nil {
		return err
	}

	roles, err := st.s.db.QueryContext(ctx,
		`select id, kind from roles where user_id = $1 order by kind`, u.ID)
	if err != nil {
		return err
	}
	defer roles.Close()
	for roles.Next() {
		var (
			id   string
			kind string
		)
		if err := roles.Scan(&id, &kind); err != nil {
			return err
		}
		r := access.NewRole(access.RoleKind(kind))
		r.ID = id
		u.AddRole(r)
	}
	return roles.Err()
}
