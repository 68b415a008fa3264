package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lawdesk.org/internal/auth"
)

// RoleStore is an auth.RoleRepository over role_templates.
type RoleStore struct {
	db *sql.DB
}

var _ auth.RoleRepository = (*RoleStore)(nil)

func NewRoleStore(db *sql.DB) *RoleStore { return &RoleStore{db: db} }

func (s *RoleStore) CreateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return auth.Role{}, fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into role_templates (id, name, description, permissions, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Name, r.Description, perms, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Role{}, fmt.Errorf("%w: role %q already exists", auth.ErrValidation, r.Name)
		}
		return auth.Role{}, err
	}
	return r, nil
}

func (s *RoleStore) GetRole(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description, ''), permissions, created_at, updated_at
		from role_templates
		where id = $1
	`, id)
	return scanRole(row)
}

func (s *RoleStore) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), permissions, created_at, updated_at
		from role_templates
		order by created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RoleStore) UpdateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	perms, err := json.Marshal(r.Permissions)
	if err != nil {
		return auth.Role{}, fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update role_templates
		set name = $2, description = $3, permissions = $4, updated_at = $5
		where id = $1
	`, r.ID, r.Name, r.Description, perms, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Role{}, fmt.Errorf("%w: role %q already exists", auth.ErrValidation, r.Name)
		}
		return auth.Role{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.Role{}, fmt.Errorf("%w: role %s", auth.ErrNotFound, r.ID)
	}
	return r, nil
}

func (s *RoleStore) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from role_templates where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, id)
	}
	return nil
}

func scanRole(row scanner) (auth.Role, error) {
	var (
		r        auth.Role
		rawPerms []byte
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &rawPerms, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &r.Permissions); err != nil {
			return auth.Role{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return r, nil
}
