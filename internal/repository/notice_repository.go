package repository

import (
	"context"
	"database/sql"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// NoticeRepo provides CRUD over the `notices` table.
type NoticeRepo struct{ DB DBTX }

func (r *NoticeRepo) List(ctx context.Context) ([]model.Notice, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, title, description, principal_kind, principal_id, created_at, updated_at
		 FROM notices ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notice
	for rows.Next() {
		var n model.Notice
		if err := rows.Scan(&n.ID, &n.Title, &n.Description,
			&n.PublishedBy.Kind, &n.PublishedBy.ID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NoticeRepo) GetByID(ctx context.Context, id uint64) (model.Notice, error) {
	var n model.Notice
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, title, description, principal_kind, principal_id, created_at, updated_at
		 FROM notices WHERE id=? LIMIT 1`, id,
	).Scan(&n.ID, &n.Title, &n.Description, &n.PublishedBy.Kind, &n.PublishedBy.ID, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Notice{}, ErrNotFound
	}
	return n, err
}

func (r *NoticeRepo) Create(ctx context.Context, title, description string, by model.PrincipalRef) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO notices (title, description, principal_kind, principal_id) VALUES (?,?,?,?)",
		title, description, by.Kind, by.ID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (r *NoticeRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM notices WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
