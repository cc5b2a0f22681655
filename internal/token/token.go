// Package token issues and verifies the three signed token kinds of the
// auth core. Access and refresh tokens carry {email, role}; the one-shot
// password reset token carries {id, role} because it is minted after an
// out-of-band code check, not after a password check. Each kind has its own
// HMAC secret so compromising one cannot forge another.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/model"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, malformed payload or expiry. Callers map it to 403; the
// deliberate coarseness avoids leaking which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

// UserClaim is the `user` object inside the JWT payload.
type UserClaim struct {
	ID    uint64     `json:"id,omitempty"`
	Email string     `json:"email,omitempty"`
	Role  model.Kind `json:"role"`
}

// Claims is the full payload of every token this service issues.
type Claims struct {
	User UserClaim `json:"user"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens. Secrets and lifetimes come from the
// injected Config; the service itself is immutable and safe for concurrent
// use.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	resetSecret   []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// Option tweaks a Service at construction time.
type Option func(*Service)

// WithNow replaces the clock, primarily so tests can move time past an
// expiry without sleeping.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a token service from the application config.
func NewService(cfg config.Config, opts ...Option) *Service {
	s := &Service{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		resetSecret:   []byte(cfg.ResetSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		resetTTL:      cfg.ResetTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAccessToken signs a short-lived bearer token for protected requests.
func (s *Service) NewAccessToken(email string, role model.Kind) (string, time.Time, error) {
	return s.sign(UserClaim{Email: email, Role: role}, s.accessSecret, s.accessTTL)
}

// NewRefreshToken signs the long-lived token persisted in the session
// registry and carried only by the tenant cookie.
func (s *Service) NewRefreshToken(email string, role model.Kind) (string, time.Time, error) {
	return s.sign(UserClaim{Email: email, Role: role}, s.refreshSecret, s.refreshTTL)
}

// NewResetToken signs the 4 minute one-shot token issued after a reset code
// has been verified.
func (s *Service) NewResetToken(id uint64, role model.Kind) (string, time.Time, error) {
	return s.sign(UserClaim{ID: id, Role: role}, s.resetSecret, s.resetTTL)
}

// VerifyAccessToken checks signature and expiry against the access secret.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	return s.verify(raw, s.accessSecret)
}

// VerifyRefreshToken checks signature and expiry against the refresh
// secret. A valid result still has to be confirmed against the session
// registry before it can be trusted.
func (s *Service) VerifyRefreshToken(raw string) (*Claims, error) {
	return s.verify(raw, s.refreshSecret)
}

// VerifyResetToken checks signature and expiry against the reset secret.
func (s *Service) VerifyResetToken(raw string) (*Claims, error) {
	return s.verify(raw, s.resetSecret)
}

func (s *Service) sign(user UserClaim, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Service) verify(raw string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than the HMAC family we sign with.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := model.ParseKind(string(claims.User.Role)); !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
