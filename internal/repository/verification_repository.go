package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// VerificationRepo persists the short-lived code/token pairs used by email
// verification and password reset flows.
type VerificationRepo struct{ DB DBTX }

// Create inserts one verification row. Any previous rows of the same type
// for the principal are removed first so only the most recent code works.
func (r *VerificationRepo) Create(ctx context.Context, owner model.PrincipalRef, code, token string, typ model.VerificationType, expiresAt time.Time) error {
	if err := r.DeleteFor(ctx, owner, typ); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO verification_tokens (principal_kind, principal_id, code, token, type, expires_at)
		 VALUES (?,?,?,?,?,?)`,
		owner.Kind, owner.ID, code, token, typ, expiresAt)
	return err
}

// FindByCodeToken looks a row up by the (code, token) proof pair.
func (r *VerificationRepo) FindByCodeToken(ctx context.Context, code, token string) (*model.VerificationToken, error) {
	var v model.VerificationToken
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, principal_kind, principal_id, code, token, type, expires_at, created_at
		 FROM verification_tokens WHERE code=? AND token=? LIMIT 1`,
		code, token,
	).Scan(&v.ID, &v.Principal.Kind, &v.Principal.ID, &v.Code, &v.Token, &v.Type, &v.ExpiresAt, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteFor removes every row of one type for a principal. Called when a
// code is consumed and when passwords change.
func (r *VerificationRepo) DeleteFor(ctx context.Context, owner model.PrincipalRef, typ model.VerificationType) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM verification_tokens WHERE principal_kind=? AND principal_id=? AND type=?",
		owner.Kind, owner.ID, typ)
	return err
}
