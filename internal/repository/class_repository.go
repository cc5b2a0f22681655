package repository

import (
	"context"
	"database/sql"

	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// ClassRepo provides CRUD over the `classes` table.
type ClassRepo struct{ DB DBTX }

func (r *ClassRepo) List(ctx context.Context) ([]model.Class, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, section, room, created_at, updated_at FROM classes ORDER BY name, section")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Section, &c.Room, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ClassRepo) GetByID(ctx context.Context, id uint64) (model.Class, error) {
	var c model.Class
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, section, room, created_at, updated_at FROM classes WHERE id=? LIMIT 1",
		id).Scan(&c.ID, &c.Name, &c.Section, &c.Room, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.Class{}, ErrNotFound
	}
	return c, err
}

func (r *ClassRepo) Create(ctx context.Context, name, section, room string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO classes (name, section, room) VALUES (?,?,?)", name, section, room)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func (r *ClassRepo) Update(ctx context.Context, id uint64, name, section, room string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE classes SET name=?, section=?, room=?, updated_at=NOW() WHERE id=?",
		name, section, room, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ClassRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM classes WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
