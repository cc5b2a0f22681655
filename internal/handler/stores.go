package handler

// stores.go declares the persistence surface the authentication pipeline
// depends on. The concrete implementations live in internal/repository;
// tests substitute in-memory fakes. Every method that participates in a
// pipeline step is also available transaction-bound through TxRunner.

import (
	"context"
	"io"
	"time"

	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/queue"
)

// PrincipalStore is the credential store adapter: read-only resolution of a
// principal (with role and permissions) plus the few mutations the auth
// flows perform on principal rows.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, kind model.Kind, email string) (*model.Principal, error)
	FindByID(ctx context.Context, kind model.Kind, id uint64) (*model.Principal, error)
	CreateAdmin(ctx context.Context, school, name, email, passwordHash, image string) (uint64, error)
	UpdatePassword(ctx context.Context, kind model.Kind, id uint64, passwordHash string) error
	MarkEmailVerified(ctx context.Context, kind model.Kind, id uint64) error
}

// SessionStore is the session registry.
type SessionStore interface {
	Create(ctx context.Context, owner model.PrincipalRef, refreshToken, deviceLabel string) error
	Rotate(ctx context.Context, oldToken, newToken string) (int64, error)
	FindByToken(ctx context.Context, tok string) ([]model.Session, error)
	RevokeByToken(ctx context.Context, tok string) error
	RevokeAllFor(ctx context.Context, owner model.PrincipalRef) error
}

// RoleStore performs the idempotent role assignment upsert.
type RoleStore interface {
	Assign(ctx context.Context, owner model.PrincipalRef, roleName string) error
}

// VerificationStore persists verification code/token pairs.
type VerificationStore interface {
	Create(ctx context.Context, owner model.PrincipalRef, code, tok string, typ model.VerificationType, expiresAt time.Time) error
	FindByCodeToken(ctx context.Context, code, tok string) (*model.VerificationToken, error)
	DeleteFor(ctx context.Context, owner model.PrincipalRef, typ model.VerificationType) error
}

// AuthStores bundles everything the pipeline touches.
type AuthStores struct {
	Principals    PrincipalStore
	Sessions      SessionStore
	Roles         RoleStore
	Verifications VerificationStore
}

// TxRunner executes fn with stores bound to one database transaction. An
// error from fn rolls the whole step back, which is what keeps issued
// tokens and persisted sessions atomic.
type TxRunner func(ctx context.Context, fn func(AuthStores) error) error

// EmailPublisher enqueues outbound mail events. Publishing happens after
// the surrounding transaction commits and failures never fail the request.
type EmailPublisher interface {
	PublishEmail(ctx context.Context, ev queue.EmailEvent) error
}

// ImageStore persists uploaded profile images and returns the stored path.
// Implemented by *storage.LocalStore; registration invokes it before the
// database transaction so a failed insert leaves at worst an unreferenced
// file, never a row pointing at a missing one.
type ImageStore interface {
	SaveImage(ctx context.Context, name string, r io.Reader) (string, error)
}
