package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
	"github.com/tauhid97k/school-management-sub000/internal/token"
)

type fakeResolver struct {
	principals map[string]*model.Principal // keyed by kind+"/"+email
}

func (f *fakeResolver) FindByEmail(_ context.Context, kind model.Kind, email string) (*model.Principal, error) {
	p, ok := f.principals[string(kind)+"/"+email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type authFixture struct {
	tokens   *token.Service
	resolver *fakeResolver
	echo     *echo.Echo
}

func setupAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return &authFixture{
		tokens: token.NewService(config.Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			ResetSecret:   "reset-secret",
			AccessTTL:     time.Hour,
			RefreshTTL:    time.Hour,
			ResetTTL:      time.Hour,
		}),
		resolver: &fakeResolver{principals: map[string]*model.Principal{}},
		echo:     echo.New(),
	}
}

func (f *authFixture) addPrincipal(p *model.Principal) {
	f.resolver.principals[string(p.Kind)+"/"+p.Email] = p
}

// do runs a request through Authorize with an inner handler that records
// the attached user and returns 200.
func (f *authFixture) do(t *testing.T, header string, permissions ...string) (*httptest.ResponseRecorder, *middleware.AuthUser) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)

	var seen *middleware.AuthUser
	h := middleware.Authorize(f.tokens, f.resolver, permissions...)(func(c echo.Context) error {
		u, ok := middleware.UserFrom(c)
		require.True(t, ok)
		seen = u
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, seen
}

func TestAuthorizeMissingHeader(t *testing.T) {
	f := setupAuthFixture(t)

	rec, _ := f.do(t, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, "Basic abc123")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeBadToken(t *testing.T) {
	f := setupAuthFixture(t)

	rec, _ := f.do(t, "Bearer garbage")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthorizeUnknownPrincipal(t *testing.T) {
	f := setupAuthFixture(t)

	raw, _, err := f.tokens.NewAccessToken("gone@x.com", model.KindAdmin)
	require.NoError(t, err)

	rec, _ := f.do(t, "Bearer "+raw)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthorizeSuspended(t *testing.T) {
	f := setupAuthFixture(t)
	f.addPrincipal(&model.Principal{
		ID: 1, Kind: model.KindTeacher, Email: "t@x.com", Suspended: true,
	})

	raw, _, err := f.tokens.NewAccessToken("t@x.com", model.KindTeacher)
	require.NoError(t, err)

	rec, _ := f.do(t, "Bearer "+raw)
	require.Equal(t, http.StatusLocked, rec.Code)
}

func TestAuthorizeMissingPermission(t *testing.T) {
	f := setupAuthFixture(t)
	f.addPrincipal(&model.Principal{
		ID: 1, Kind: model.KindStaff, Email: "s@x.com",
		Permissions: []string{"view_classes"},
	})

	raw, _, err := f.tokens.NewAccessToken("s@x.com", model.KindStaff)
	require.NoError(t, err)

	rec, _ := f.do(t, "Bearer "+raw, "delete_classes")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthorizeHappyPath(t *testing.T) {
	f := setupAuthFixture(t)
	f.addPrincipal(&model.Principal{
		ID: 9, Kind: model.KindStaff, Name: "Sam", Email: "s@x.com",
		RoleName:    "accountant",
		Permissions: []string{"view_classes", "view_notices"},
	})

	raw, _, err := f.tokens.NewAccessToken("s@x.com", model.KindStaff)
	require.NoError(t, err)

	rec, user := f.do(t, "Bearer "+raw, "view_classes", "view_notices")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	require.Equal(t, uint64(9), user.ID)
	require.Equal(t, "s@x.com", user.Email)
	require.Equal(t, model.KindStaff, user.Role)
	require.Equal(t, model.PrincipalRef{Kind: model.KindStaff, ID: 9}, user.Ref())
}

// The database row, not the token, decides permissions: a token minted
// while a permission was granted stops working the moment the row changes.
func TestAuthorizeReResolvesPerRequest(t *testing.T) {
	f := setupAuthFixture(t)
	p := &model.Principal{
		ID: 2, Kind: model.KindStaff, Email: "s@x.com",
		Permissions: []string{"delete_classes"},
	}
	f.addPrincipal(p)

	raw, _, err := f.tokens.NewAccessToken("s@x.com", model.KindStaff)
	require.NoError(t, err)

	rec, _ := f.do(t, "Bearer "+raw, "delete_classes")
	require.Equal(t, http.StatusOK, rec.Code)

	p.Permissions = nil
	rec, _ = f.do(t, "Bearer "+raw, "delete_classes")
	require.Equal(t, http.StatusForbidden, rec.Code)
}
