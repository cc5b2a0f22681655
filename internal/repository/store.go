package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx. Every
// repository runs its statements through this interface so the same code
// serves both direct calls and calls inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles all repositories over one database handle and provides the
// transaction boundary used by the authentication pipeline. Repositories on
// a Store returned by Tx are bound to the open transaction.
type Store struct {
	db *sql.DB

	Principals    *PrincipalRepo
	Sessions      *SessionRepo
	Roles         *RoleRepo
	Verifications *VerificationRepo
	Classes       *ClassRepo
	Notices       *NoticeRepo
}

// NewStore builds a Store whose repositories run directly on the pool.
func NewStore(db *sql.DB) *Store {
	return bind(db, db)
}

func bind(db *sql.DB, q DBTX) *Store {
	return &Store{
		db:            db,
		Principals:    &PrincipalRepo{DB: q},
		Sessions:      &SessionRepo{DB: q},
		Roles:         &RoleRepo{DB: q},
		Verifications: &VerificationRepo{DB: q},
		Classes:       &ClassRepo{DB: q},
		Notices:       &NoticeRepo{DB: q},
	}
}

// Tx runs fn inside one database transaction. The Store passed to fn is
// bound to that transaction; any error from fn rolls everything back. The
// pipeline relies on this so a caller can never observe a freshly issued
// token without its persisted session row.
func (s *Store) Tx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(s.db, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
