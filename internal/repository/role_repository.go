package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// RoleRepo manages roles and the one-to-one role assignment of principals.
type RoleRepo struct{ DB DBTX }

// FindByName looks a role up by its unique name.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (model.Role, error) {
	var ro model.Role
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM roles WHERE name=? LIMIT 1", name,
	).Scan(&ro.ID, &ro.Name, &ro.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Role{}, ErrNotFound
	}
	return ro, err
}

// findOrCreate returns the role with the given name, creating it first when
// absent. The fixed names (admin, teacher, student, staff) are seeded by
// migration; creation only ever happens for custom staff sub-roles.
func (r *RoleRepo) findOrCreate(ctx context.Context, name string) (model.Role, error) {
	ro, err := r.FindByName(ctx, name)
	if err == nil {
		return ro, nil
	}
	if err != ErrNotFound {
		return model.Role{}, err
	}
	res, err := r.DB.ExecContext(ctx, "INSERT INTO roles (name) VALUES (?)", name)
	if err != nil {
		// Lost a race with a concurrent insert; read the winner.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return r.FindByName(ctx, name)
		}
		return model.Role{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Role{}, err
	}
	ro.ID = uint64(id)
	ro.Name = name
	return ro, nil
}

// Assign upserts the role assignment for one principal. The unique key on
// (principal_kind, principal_id) guarantees at most one assignment per
// principal: re-assignment updates role_id in place. Must run inside the
// same transaction as the principal write it accompanies.
func (r *RoleRepo) Assign(ctx context.Context, owner model.PrincipalRef, roleName string) error {
	ro, err := r.findOrCreate(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO role_assignments (principal_kind, principal_id, role_id)
		 VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE role_id=VALUES(role_id), updated_at=NOW()`,
		owner.Kind, owner.ID, ro.ID)
	return err
}

// AssignmentFor reads the current assignment of one principal. Mostly used
// by tests and the management endpoints.
func (r *RoleRepo) AssignmentFor(ctx context.Context, owner model.PrincipalRef) (model.RoleAssignment, error) {
	var ra model.RoleAssignment
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, principal_kind, principal_id, role_id, created_at, updated_at
		 FROM role_assignments WHERE principal_kind=? AND principal_id=? LIMIT 1`,
		owner.Kind, owner.ID,
	).Scan(&ra.ID, &ra.Principal.Kind, &ra.Principal.ID, &ra.RoleID, &ra.CreatedAt, &ra.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.RoleAssignment{}, ErrNotFound
	}
	return ra, err
}
