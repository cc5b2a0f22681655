package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
	"github.com/tauhid97k/school-management-sub000/internal/token"
)

// PrincipalResolver re-resolves the current principal for a token's
// {email, role} claim. Satisfied by *repository.PrincipalRepo.
type PrincipalResolver interface {
	FindByEmail(ctx context.Context, kind model.Kind, email string) (*model.Principal, error)
}

// AuthUser is the normalized user context attached to every authorized
// request. Handlers read it through UserFrom and never touch tokens.
type AuthUser struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        model.Kind `json:"role"`
	Permissions []string   `json:"permissions"`
}

// Ref returns the tagged principal reference for join-table operations.
func (u *AuthUser) Ref() model.PrincipalRef {
	return model.PrincipalRef{Kind: u.Role, ID: u.ID}
}

const userContextKey = "auth_user"

// UserFrom extracts the authorized user attached by Authorize.
func UserFrom(c echo.Context) (*AuthUser, bool) {
	u, ok := c.Get(userContextKey).(*AuthUser)
	return u, ok
}

// SetUser attaches the user context. Authorize calls this; tests use it to
// exercise handlers behind the gate without minting tokens.
func SetUser(c echo.Context, u *AuthUser) {
	c.Set(userContextKey, u)
}

// Authorize gates a route behind a verified access token and, optionally,
// required permissions. On every request it verifies the bearer token and
// then re-resolves the principal from the database: the fresh row, not the
// token payload, is the source of truth for permissions and suspension, so
// revoking a role mid-session takes effect on the very next request instead
// of waiting out the token expiry.
//
// Status mapping: 401 when no usable credential is presented or the
// principal no longer exists, 403 when the token fails verification or a
// required permission is missing, 423 when the account is suspended.
func Authorize(tokens *token.Service, principals PrincipalResolver, permissions ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := tokens.VerifyAccessToken(raw)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"message": "Invalid or expired token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			p, err := principals.FindByEmail(ctx, claims.User.Role, claims.User.Email)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
				}
				return err
			}
			if p.Suspended {
				return c.JSON(http.StatusLocked, echo.Map{"message": "Account suspended"})
			}

			for _, required := range permissions {
				if !p.HasPermission(required) {
					return c.JSON(http.StatusForbidden, echo.Map{"message": "Permission denied"})
				}
			}

			SetUser(c, &AuthUser{
				ID:          p.ID,
				Name:        p.Name,
				Email:       p.Email,
				Role:        p.Kind,
				Permissions: p.Permissions,
			})
			return next(c)
		}
	}
}
