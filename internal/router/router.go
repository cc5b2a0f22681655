package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/tauhid97k/school-management-sub000/internal/handler"
	"github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/token"
)

// Deps bundles everything route registration needs. RateLimit and Cache may
// be no-op middleware when Redis is unavailable.
type Deps struct {
	Auth       *handler.AuthHandler
	Classes    *handler.ClassHandler
	Notices    *handler.NoticeHandler
	Tokens     *token.Service
	Principals middleware.PrincipalResolver
	RateLimit  echo.MiddlewareFunc
	Cache      echo.MiddlewareFunc
}

// Register wires every route. The credential endpoints are public but rate
// limited; everything else runs behind the Authorize middleware, with the
// required permission declared right here at the route so the full
// authorization surface is readable in one file.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	// Public auth endpoints. Each is either pre-session (register, login,
	// refresh) or gated by its own proof of possession (codes, reset token).
	pub := e.Group("", d.RateLimit)
	pub.POST("/register", d.Auth.Register)
	pub.POST("/login", d.Auth.Login)
	pub.GET("/refresh-token", d.Auth.Refresh)
	pub.POST("/reset-password", d.Auth.ResetPassword)
	pub.POST("/verify-reset-code", d.Auth.VerifyResetCode)
	pub.POST("/update-password", d.Auth.UpdatePassword)
	pub.POST("/verify-email", d.Auth.VerifyEmail)
	pub.POST("/resend-verification", d.Auth.ResendVerification)

	authed := func(permissions ...string) echo.MiddlewareFunc {
		return middleware.Authorize(d.Tokens, d.Principals, permissions...)
	}

	e.POST("/logout", d.Auth.Logout, authed())
	e.POST("/logout-all", d.Auth.LogoutAll, authed())
	e.GET("/me", d.Auth.Me, authed())

	e.GET("/classes", d.Classes.List, authed("view_classes"), d.Cache)
	e.POST("/classes", d.Classes.Create, authed("create_classes"))
	e.PUT("/classes/:id", d.Classes.Update, authed("update_classes"))
	e.DELETE("/classes/:id", d.Classes.Delete, authed("delete_classes"))

	e.GET("/notices", d.Notices.List, authed("view_notices"), d.Cache)
	e.POST("/notices", d.Notices.Create, authed("create_notices"))
	e.DELETE("/notices/:id", d.Notices.Delete, authed("delete_notices"))
}
