package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/queue"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
	"github.com/tauhid97k/school-management-sub000/internal/token"
	"github.com/tauhid97k/school-management-sub000/internal/utils"
)

// Verification code lifetimes. The reset window is short because the code
// only has to survive a user switching to their mailbox and back.
const (
	emailCodeTTL = time.Hour
	resetCodeTTL = 10 * time.Minute
)

// registerTimeout bounds the whole registration step: it chains an
// optional profile image move, a password hash, a principal insert, a role
// upsert, a verification row and a token/session sequence, and any single
// slow step should fail the whole thing rather than leave a half-created
// principal.
const registerTimeout = 7 * time.Second

const dbTimeout = 5 * time.Second

// AuthHandler orchestrates register, login, refresh, logout and the
// password/email verification flows on top of the injected stores, token
// service and cookie binder.
type AuthHandler struct {
	Cfg     config.Config
	Tokens  *token.Service
	Cookies *utils.CookieBinder
	Stores  AuthStores
	Tx      TxRunner
	Events  EmailPublisher
	Images  ImageStore
	Log     zerolog.Logger
}

func NewAuthHandler(cfg config.Config, tokens *token.Service, cookies *utils.CookieBinder, stores AuthStores, tx TxRunner, events EmailPublisher, images ImageStore, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Tokens: tokens, Cookies: cookies, Stores: stores, Tx: tx, Events: events, Images: images, Log: log}
}

// ----- DTOs -----

// registerReq binds from JSON or, when a profile image rides along, from a
// multipart form.
type registerReq struct {
	School   string `json:"school" form:"school"`
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
type emailRoleReq struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
type codeTokenReq struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}
type updatePasswordReq struct {
	Password string `json:"password"`
}

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// httpError carries a client-visible status and message out of a
// transaction closure so the step rolls back and the handler still answers
// with the right code.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func fail(code int, msg string) error { return &httpError{code: code, msg: msg} }

// respondErr maps a pipeline error onto the uniform {message} JSON body.
// Unknown errors propagate to the global handler, which logs them and
// answers a generic 500; no internals reach the client.
func respondErr(c echo.Context, err error) error {
	var ve *validationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "Validation failed", "errors": ve.errs})
	}
	var he *httpError
	if errors.As(err, &he) {
		return c.JSON(he.code, echo.Map{"message": he.msg})
	}
	return err
}

// Register creates a self-service admin account for a school, assigns the
// admin role, queues a verification mail and logs the new admin straight
// in: tokens are issued and the session row is created inside the same
// transaction as the principal, so the client can never hold a token whose
// session did not commit. The refresh token travels only in the tenant
// cookie; the body carries the access token alone.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	req.School = strings.TrimSpace(req.School)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// Collect all field errors instead of failing on the first.
	fieldErrs := map[string]string{}
	if req.School == "" {
		fieldErrs["school"] = "School name is required"
	}
	if req.Name == "" {
		fieldErrs["name"] = "Name is required"
	}
	switch {
	case req.Email == "":
		fieldErrs["email"] = "Email is required"
	case !emailRx.MatchString(req.Email):
		fieldErrs["email"] = "Email is invalid"
	}
	if len(req.Password) < 8 {
		fieldErrs["password"] = "Password must be at least 8 characters"
	}
	if len(fieldErrs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "Validation failed", "errors": fieldErrs})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), registerTimeout)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return err
	}

	image, err := h.saveProfileImage(ctx, c)
	if err != nil {
		return err
	}

	var (
		access  string
		refresh string
		ev      queue.EmailEvent
	)
	err = h.Tx(ctx, func(s AuthStores) error {
		id, err := s.Principals.CreateAdmin(ctx, req.School, req.Name, req.Email, hash, image)
		if err != nil {
			if errors.Is(err, repository.ErrEmailExists) {
				return fail(http.StatusUnprocessableEntity, "Email already exists")
			}
			return err
		}
		owner := model.PrincipalRef{Kind: model.KindAdmin, ID: id}

		if err := s.Roles.Assign(ctx, owner, "admin"); err != nil {
			return err
		}

		code, err := utils.NewVerificationCode()
		if err != nil {
			return err
		}
		vtok := uuid.NewString()
		if err := s.Verifications.Create(ctx, owner, code, vtok, model.VerificationEmail, time.Now().UTC().Add(emailCodeTTL)); err != nil {
			return err
		}
		ev = queue.EmailEvent{
			Type:   queue.EmailVerification,
			Kind:   model.KindAdmin,
			To:     req.Email,
			Name:   req.Name,
			School: req.School,
			Code:   code,
			Token:  vtok,
			SentAt: time.Now().UTC().Format(time.RFC3339),
		}

		if access, _, err = h.Tokens.NewAccessToken(req.Email, model.KindAdmin); err != nil {
			return err
		}
		if refresh, _, err = h.Tokens.NewRefreshToken(req.Email, model.KindAdmin); err != nil {
			return err
		}
		return s.Sessions.Create(ctx, owner, refresh, deviceLabel(c))
	})
	if err != nil {
		return respondErr(c, err)
	}

	// Mail is emitted only after the transaction committed; a failure to
	// send must not fail registration.
	h.emitEmail(ev)

	h.Cookies.Set(c.Response(), c.Request(), refresh)
	return c.JSON(http.StatusCreated, echo.Map{"accessToken": access})
}

// Login authenticates {email, password, role} against the matching
// principal table. Unknown email and wrong password share one response so
// the endpoint cannot be used to enumerate accounts. A stale tenant cookie
// is revoked up front to stop sessions stacking under key confusion.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	kind, kindOK := model.ParseKind(strings.TrimSpace(req.Role))
	fieldErrs := map[string]string{}
	if !kindOK {
		fieldErrs["role"] = "Role must be one of admin, teacher, student, staff"
	}
	if req.Email == "" {
		fieldErrs["email"] = "Email is required"
	}
	if req.Password == "" {
		fieldErrs["password"] = "Password is required"
	}
	if len(fieldErrs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "Validation failed", "errors": fieldErrs})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	// The presented cookie is retired before credentials are even checked,
	// and outside the session transaction: a failed login must still
	// invalidate the stale session it arrived with.
	stale, hadCookie := h.Cookies.Read(c.Request())
	if hadCookie {
		if err := h.Stores.Sessions.RevokeByToken(ctx, stale); err != nil {
			return err
		}
	}

	var (
		access  string
		refresh string
	)
	err := h.Tx(ctx, func(s AuthStores) error {
		p, err := s.Principals.FindByEmail(ctx, kind, req.Email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail(http.StatusBadRequest, "Invalid email or password")
			}
			return err
		}
		if p.Suspended {
			return fail(http.StatusLocked, "Account suspended")
		}
		if !utils.VerifyPassword(p.PasswordHash, req.Password) {
			return fail(http.StatusBadRequest, "Invalid email or password")
		}

		if access, _, err = h.Tokens.NewAccessToken(p.Email, p.Kind); err != nil {
			return err
		}
		if refresh, _, err = h.Tokens.NewRefreshToken(p.Email, p.Kind); err != nil {
			return err
		}
		return s.Sessions.Create(ctx, p.Ref(), refresh, deviceLabel(c))
	})
	if err != nil {
		if hadCookie {
			h.Cookies.Clear(c.Response(), c.Request())
		}
		return respondErr(c, err)
	}

	h.Cookies.Set(c.Response(), c.Request(), refresh)
	return c.JSON(http.StatusOK, echo.Map{"accessToken": access})
}

// Refresh exchanges the cookie refresh token for a fresh access/refresh
// pair, rotating the session row in place. A token whose signature checks
// out but which is no longer in the registry has been rotated away already:
// that is a replay, and every session of the claimed principal is revoked
// before the request fails.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, ok := h.Cookies.Read(c.Request())
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}

	claims, err := h.Tokens.VerifyRefreshToken(raw)
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "Invalid or expired token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var (
		access  string
		refresh string
		reused  bool
	)
	err = h.Tx(ctx, func(s AuthStores) error {
		sessions, err := s.Sessions.FindByToken(ctx, raw)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			// Reuse detection. Returning nil commits the revocation even
			// though the request itself fails below.
			reused = true
			p, err := s.Principals.FindByEmail(ctx, claims.User.Role, claims.User.Email)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil
				}
				return err
			}
			return s.Sessions.RevokeAllFor(ctx, p.Ref())
		}

		p, err := s.Principals.FindByEmail(ctx, claims.User.Role, claims.User.Email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail(http.StatusUnauthorized, "Authentication required")
			}
			return err
		}

		if access, _, err = h.Tokens.NewAccessToken(p.Email, p.Kind); err != nil {
			return err
		}
		if refresh, _, err = h.Tokens.NewRefreshToken(p.Email, p.Kind); err != nil {
			return err
		}
		_, err = s.Sessions.Rotate(ctx, raw, refresh)
		return err
	})
	if err != nil {
		return respondErr(c, err)
	}
	if reused {
		h.Cookies.Clear(c.Response(), c.Request())
		return c.JSON(http.StatusForbidden, echo.Map{"message": "Invalid or expired token"})
	}

	h.Cookies.Set(c.Response(), c.Request(), refresh)
	return c.JSON(http.StatusOK, echo.Map{"accessToken": access})
}

// Logout revokes the exact session behind the tenant cookie and clears it.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, ok := h.Cookies.Read(c.Request())
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Stores.Sessions.RevokeByToken(ctx, raw); err != nil {
		return err
	}
	h.Cookies.Clear(c.Response(), c.Request())
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out"})
}

// LogoutAll revokes every session of the authenticated principal across
// all devices. Requires a prior Authorize pass for the principal identity.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	if _, ok := h.Cookies.Read(c.Request()); !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}
	user, ok := middleware.UserFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Stores.Sessions.RevokeAllFor(ctx, user.Ref()); err != nil {
		return err
	}
	h.Cookies.Clear(c.Response(), c.Request())
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out everywhere"})
}

// ResetPassword starts the password reset flow. The response never
// discloses whether the email matched an account.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	ev, err := h.issueCode(c, model.VerificationPasswordReset, queue.EmailPasswordReset, resetCodeTTL)
	if err != nil {
		return respondErr(c, err)
	}
	if ev != nil {
		h.emitEmail(*ev)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "If the email exists, a reset code has been sent"})
}

// ResendVerification re-issues the email verification code for an account
// that has not verified yet. Same non-disclosure contract as ResetPassword.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	ev, err := h.issueCode(c, model.VerificationEmail, queue.EmailVerification, emailCodeTTL)
	if err != nil {
		return respondErr(c, err)
	}
	if ev != nil {
		h.emitEmail(*ev)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "If the email exists, a verification code has been sent"})
}

// issueCode is the shared {email, role} -> verification row step behind
// ResetPassword and ResendVerification. It returns a nil event when the
// account does not exist (or needs no code) so callers still answer 200.
func (h *AuthHandler) issueCode(c echo.Context, typ model.VerificationType, evType string, ttl time.Duration) (*queue.EmailEvent, error) {
	var req emailRoleReq
	if err := c.Bind(&req); err != nil {
		return nil, fail(http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	kind, kindOK := model.ParseKind(strings.TrimSpace(req.Role))
	fieldErrs := map[string]string{}
	if !kindOK {
		fieldErrs["role"] = "Role must be one of admin, teacher, student, staff"
	}
	if req.Email == "" || !emailRx.MatchString(req.Email) {
		fieldErrs["email"] = "A valid email is required"
	}
	if len(fieldErrs) > 0 {
		return nil, &validationError{errs: fieldErrs}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var ev *queue.EmailEvent
	err := h.Tx(ctx, func(s AuthStores) error {
		p, err := s.Principals.FindByEmail(ctx, kind, req.Email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil // generic 200, no disclosure
			}
			return err
		}
		if typ == model.VerificationEmail && p.EmailVerifiedAt != nil {
			return nil // already verified, nothing to send
		}

		code, err := utils.NewVerificationCode()
		if err != nil {
			return err
		}
		vtok := uuid.NewString()
		if err := s.Verifications.Create(ctx, p.Ref(), code, vtok, typ, time.Now().UTC().Add(ttl)); err != nil {
			return err
		}
		ev = &queue.EmailEvent{
			Type:   evType,
			Kind:   p.Kind,
			To:     p.Email,
			Name:   p.Name,
			School: p.School,
			Code:   code,
			Token:  vtok,
			SentAt: time.Now().UTC().Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// VerifyResetCode exchanges a valid {code, token} pair for the 4 minute
// password reset token. The reset token carries {id, role} instead of the
// email claim shape because it is minted after code possession was proven,
// not after a password check.
func (h *AuthHandler) VerifyResetCode(c echo.Context) error {
	var req codeTokenReq
	if err := c.Bind(&req); err != nil || req.Code == "" || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Code and token are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	v, err := h.Stores.Verifications.FindByCodeToken(ctx, req.Code, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Invalid code"})
		}
		return err
	}
	if v.Type != model.VerificationPasswordReset {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "Invalid code"})
	}
	if v.Expired(time.Now().UTC()) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "Code has expired"})
	}

	reset, _, err := h.Tokens.NewResetToken(v.Principal.ID, v.Principal.Kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"token": reset})
}

// UpdatePassword finishes the reset flow. The reset token is verified
// before anything is touched, so an expired token revokes nothing. All
// writes (password, session revocation, verification cleanup) share one
// transaction.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}
	claims, err := h.Tokens.VerifyResetToken(strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "Invalid or expired token"})
	}

	var req updatePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"message": "Validation failed",
			"errors":  map[string]string{"password": "Password must be at least 8 characters"},
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return err
	}

	err = h.Tx(ctx, func(s AuthStores) error {
		p, err := s.Principals.FindByID(ctx, claims.User.Role, claims.User.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail(http.StatusUnauthorized, "Authentication required")
			}
			return err
		}
		if err := s.Sessions.RevokeAllFor(ctx, p.Ref()); err != nil {
			return err
		}
		if err := s.Principals.UpdatePassword(ctx, p.Kind, p.ID, hash); err != nil {
			return err
		}
		return s.Verifications.DeleteFor(ctx, p.Ref(), model.VerificationPasswordReset)
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password updated"})
}

// VerifyEmail consumes an EMAIL verification {code, token} pair, stamps the
// verification timestamp and invalidates prior sessions.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req codeTokenReq
	if err := c.Bind(&req); err != nil || req.Code == "" || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Code and token are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	v, err := h.Stores.Verifications.FindByCodeToken(ctx, req.Code, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "Invalid code"})
		}
		return err
	}
	if v.Type != model.VerificationEmail {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "Invalid code"})
	}
	if v.Expired(time.Now().UTC()) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "Code has expired"})
	}

	err = h.Tx(ctx, func(s AuthStores) error {
		if err := s.Principals.MarkEmailVerified(ctx, v.Principal.Kind, v.Principal.ID); err != nil {
			return err
		}
		if err := s.Verifications.DeleteFor(ctx, v.Principal, model.VerificationEmail); err != nil {
			return err
		}
		// Verification proves mailbox control; anything logged in before
		// that proof is cut loose.
		return s.Sessions.RevokeAllFor(ctx, v.Principal)
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Email verified"})
}

// Me returns the normalized user context attached by the middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.UserFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Authentication required"})
	}
	return c.JSON(http.StatusOK, user)
}

// ----- helpers -----

// validationError carries a field-indexed error list out of shared steps.
type validationError struct{ errs map[string]string }

func (v *validationError) Error() string { return "validation failed" }

// saveProfileImage stores the optional multipart "image" upload and
// returns its stored path, or "" when the request carries no image. The
// file is moved into place before the registration transaction begins; a
// move failure fails registration, an absent image does not.
func (h *AuthHandler) saveProfileImage(ctx context.Context, c echo.Context) (string, error) {
	if h.Images == nil {
		return "", nil
	}
	fh, err := c.FormFile("image")
	if err != nil || fh == nil {
		// JSON bodies and imageless forms both land here.
		return "", nil
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	return h.Images.SaveImage(ctx, name, src)
}

func deviceLabel(c echo.Context) string {
	ua := strings.TrimSpace(c.Request().UserAgent())
	if ua == "" {
		return "unknown device"
	}
	if len(ua) > 255 {
		ua = ua[:255]
	}
	return ua
}

// emitEmail publishes a mail event without blocking or failing the request
// path. The consumer owns retries; here a failed publish is only logged.
func (h *AuthHandler) emitEmail(ev queue.EmailEvent) {
	if h.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Events.PublishEmail(ctx, ev); err != nil {
			h.Log.Warn().Err(err).Str("type", ev.Type).Msg("auth: mail event publish failed")
		}
	}()
}
