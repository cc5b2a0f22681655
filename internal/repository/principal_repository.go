package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// principalTables is the role-indexed strategy table: every operation that
// touches a principal row switches on the kind exactly once, here. Adding a
// principal kind means adding one entry, not another if/else ladder in each
// flow.
var principalTables = map[model.Kind]string{
	model.KindAdmin:   "admins",
	model.KindTeacher: "teachers",
	model.KindStudent: "students",
	model.KindStaff:   "staff",
}

// PrincipalRepo is the credential store adapter. It resolves a principal by
// kind plus email (or id) together with its current role assignment and the
// role's full permission list. All methods are read only except the
// explicit mutations at the bottom.
type PrincipalRepo struct{ DB DBTX }

// FindByEmail resolves a principal by kind and normalized email. Returns
// ErrNotFound when no row matches, including for a kind outside the
// strategy table: there is no table such a principal could live in.
func (r *PrincipalRepo) FindByEmail(ctx context.Context, kind model.Kind, email string) (*model.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx, kind, "email=?", email)
}

// FindByID resolves a principal by kind and primary key.
func (r *PrincipalRepo) FindByID(ctx context.Context, kind model.Kind, id uint64) (*model.Principal, error) {
	return r.findOne(ctx, kind, "id=?", id)
}

func (r *PrincipalRepo) findOne(ctx context.Context, kind model.Kind, where string, arg any) (*model.Principal, error) {
	table, ok := principalTables[kind]
	if !ok {
		return nil, ErrNotFound
	}

	cols := "id,'',image,name,email,password_hash,suspended,email_verified_at,created_at,updated_at"
	if kind == model.KindAdmin {
		// Only admins carry the tenant (school) name.
		cols = "id,school,image,name,email,password_hash,suspended,email_verified_at,created_at,updated_at"
	}

	p := model.Principal{Kind: kind}
	var verifiedAt sql.NullTime
	var image sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+cols+" FROM "+table+" WHERE "+where+" LIMIT 1", arg,
	).Scan(&p.ID, &p.School, &image, &p.Name, &p.Email, &p.PasswordHash, &p.Suspended,
		&verifiedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.EmailVerifiedAt = &t
	}
	p.Image = image.String

	if err := r.attachRole(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// attachRole loads the principal's role assignment and permission names in
// the same traversal. A principal without an assignment simply gets an
// empty permission set.
func (r *PrincipalRepo) attachRole(ctx context.Context, p *model.Principal) error {
	var roleID uint64
	err := r.DB.QueryRowContext(ctx,
		`SELECT r.id, r.name FROM role_assignments ra
		 JOIN roles r ON r.id = ra.role_id
		 WHERE ra.principal_kind=? AND ra.principal_id=? LIMIT 1`,
		p.Kind, p.ID).Scan(&roleID, &p.RoleName)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.name FROM permissions p
		 JOIN permission_role pr ON pr.permission_id = p.id
		 WHERE pr.role_id=? ORDER BY p.name`, roleID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		p.Permissions = append(p.Permissions, name)
	}
	return rows.Err()
}

// CreateAdmin inserts a self-service registration row. Registration only
// ever creates admins; teachers, students and staff are created by an admin
// through the management endpoints.
func (r *PrincipalRepo) CreateAdmin(ctx context.Context, school, name, email, passwordHash, image string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO admins (school, name, email, password_hash, image) VALUES (?,?,?,?,?)",
		school, name, email, passwordHash, image)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// UpdatePassword replaces the stored hash for one principal row.
func (r *PrincipalRepo) UpdatePassword(ctx context.Context, kind model.Kind, id uint64, passwordHash string) error {
	table, ok := principalTables[kind]
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE "+table+" SET password_hash=?, updated_at=NOW() WHERE id=?",
		passwordHash, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified stamps email_verified_at for one principal row.
func (r *PrincipalRepo) MarkEmailVerified(ctx context.Context, kind model.Kind, id uint64) error {
	table, ok := principalTables[kind]
	if !ok {
		return ErrNotFound
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE "+table+" SET email_verified_at=NOW(), updated_at=NOW() WHERE id=?", id)
	return err
}
