package repository

import (
	"context"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// SessionRepo is the session registry: one row per logged-in device,
// keyed by the tagged principal reference and holding the device's current
// refresh token verbatim. All methods are safe to run inside Store.Tx.
type SessionRepo struct{ DB DBTX }

// Create inserts a session row for one device.
func (r *SessionRepo) Create(ctx context.Context, owner model.PrincipalRef, refreshToken, deviceLabel string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (principal_kind, principal_id, refresh_token, device_label) VALUES (?,?,?,?)",
		owner.Kind, owner.ID, refreshToken, deviceLabel)
	return err
}

// Rotate replaces oldToken with newToken in place. Update rather than
// delete+insert keeps the row identity (and its created_at audit trail)
// across rotations. Returns the number of rows updated; zero means another
// request rotated the token first.
func (r *SessionRepo) Rotate(ctx context.Context, oldToken, newToken string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET refresh_token=?, updated_at=NOW() WHERE refresh_token=?",
		newToken, oldToken)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindByToken returns every session currently holding the given refresh
// token. A non-empty result is what makes a signature-valid token
// trustworthy during the refresh flow.
func (r *SessionRepo) FindByToken(ctx context.Context, token string) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, principal_kind, principal_id, refresh_token, device_label, created_at, updated_at
		 FROM sessions WHERE refresh_token=?`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Principal.Kind, &s.Principal.ID,
			&s.RefreshToken, &s.DeviceLabel, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RevokeByToken deletes the sessions matching exactly this token. Used at
// logout and when login finds a stale cookie.
func (r *SessionRepo) RevokeByToken(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE refresh_token=?", token)
	return err
}

// RevokeAllFor deletes every session of one principal. Used by logout-all,
// password updates and refresh-token reuse detection.
func (r *SessionRepo) RevokeAllFor(ctx context.Context, owner model.PrincipalRef) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE principal_kind=? AND principal_id=?",
		owner.Kind, owner.ID)
	return err
}
