package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/handler"
	"github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/model"
	"github.com/tauhid97k/school-management-sub000/internal/queue"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
	"github.com/tauhid97k/school-management-sub000/internal/token"
	"github.com/tauhid97k/school-management-sub000/internal/utils"
)

const (
	testHost       = "acme.example.com"
	testCookieName = "acme_sm_management"
)

// ----- in-memory stores -----

// fakeDB backs every store interface the auth pipeline uses. The Tx runner
// is a passthrough; these tests assert the calls the pipeline makes, not
// transactional rollback.
type fakeDB struct {
	nextID        uint64
	principals    map[model.PrincipalRef]*model.Principal
	sessions      []model.Session
	verifications []model.VerificationToken
	assignments   map[model.PrincipalRef]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		principals:  map[model.PrincipalRef]*model.Principal{},
		assignments: map[model.PrincipalRef]string{},
	}
}

func (db *fakeDB) add(p *model.Principal) *model.Principal {
	if p.ID == 0 {
		db.nextID++
		p.ID = db.nextID
	} else if p.ID > db.nextID {
		db.nextID = p.ID
	}
	db.principals[p.Ref()] = p
	return p
}

func (db *fakeDB) FindByEmail(_ context.Context, kind model.Kind, email string) (*model.Principal, error) {
	for _, p := range db.principals {
		if p.Kind == kind && p.Email == email {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (db *fakeDB) FindByID(_ context.Context, kind model.Kind, id uint64) (*model.Principal, error) {
	p, ok := db.principals[model.PrincipalRef{Kind: kind, ID: id}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (db *fakeDB) CreateAdmin(_ context.Context, school, name, email, passwordHash, image string) (uint64, error) {
	for _, p := range db.principals {
		if p.Kind == model.KindAdmin && p.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	p := db.add(&model.Principal{
		Kind: model.KindAdmin, School: school, Image: image, Name: name,
		Email: email, PasswordHash: passwordHash,
	})
	return p.ID, nil
}

func (db *fakeDB) UpdatePassword(_ context.Context, kind model.Kind, id uint64, passwordHash string) error {
	p, ok := db.principals[model.PrincipalRef{Kind: kind, ID: id}]
	if !ok {
		return repository.ErrNotFound
	}
	p.PasswordHash = passwordHash
	return nil
}

func (db *fakeDB) MarkEmailVerified(_ context.Context, kind model.Kind, id uint64) error {
	p, ok := db.principals[model.PrincipalRef{Kind: kind, ID: id}]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	p.EmailVerifiedAt = &now
	return nil
}

func (db *fakeDB) Create(_ context.Context, owner model.PrincipalRef, refreshToken, deviceLabel string) error {
	db.sessions = append(db.sessions, model.Session{
		Principal: owner, RefreshToken: refreshToken, DeviceLabel: deviceLabel,
	})
	return nil
}

func (db *fakeDB) Rotate(_ context.Context, oldToken, newToken string) (int64, error) {
	var n int64
	for i := range db.sessions {
		if db.sessions[i].RefreshToken == oldToken {
			db.sessions[i].RefreshToken = newToken
			n++
		}
	}
	return n, nil
}

func (db *fakeDB) FindByToken(_ context.Context, tok string) ([]model.Session, error) {
	var out []model.Session
	for _, s := range db.sessions {
		if s.RefreshToken == tok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (db *fakeDB) RevokeByToken(_ context.Context, tok string) error {
	kept := db.sessions[:0]
	for _, s := range db.sessions {
		if s.RefreshToken != tok {
			kept = append(kept, s)
		}
	}
	db.sessions = kept
	return nil
}

func (db *fakeDB) RevokeAllFor(_ context.Context, owner model.PrincipalRef) error {
	kept := db.sessions[:0]
	for _, s := range db.sessions {
		if s.Principal != owner {
			kept = append(kept, s)
		}
	}
	db.sessions = kept
	return nil
}

func (db *fakeDB) Assign(_ context.Context, owner model.PrincipalRef, roleName string) error {
	db.assignments[owner] = roleName
	return nil
}

func (db *fakeDB) CreateVerification(_ context.Context, owner model.PrincipalRef, code, tok string, typ model.VerificationType, expiresAt time.Time) error {
	kept := db.verifications[:0]
	for _, v := range db.verifications {
		if v.Principal != owner || v.Type != typ {
			kept = append(kept, v)
		}
	}
	db.verifications = append(kept, model.VerificationToken{
		Principal: owner, Code: code, Token: tok, Type: typ, ExpiresAt: expiresAt,
	})
	return nil
}

func (db *fakeDB) FindByCodeToken(_ context.Context, code, tok string) (*model.VerificationToken, error) {
	for i := range db.verifications {
		if db.verifications[i].Code == code && db.verifications[i].Token == tok {
			v := db.verifications[i]
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (db *fakeDB) DeleteFor(_ context.Context, owner model.PrincipalRef, typ model.VerificationType) error {
	kept := db.verifications[:0]
	for _, v := range db.verifications {
		if v.Principal != owner || v.Type != typ {
			kept = append(kept, v)
		}
	}
	db.verifications = kept
	return nil
}

func (db *fakeDB) sessionsFor(owner model.PrincipalRef) []model.Session {
	var out []model.Session
	for _, s := range db.sessions {
		if s.Principal == owner {
			out = append(out, s)
		}
	}
	return out
}

// verificationStore adapts fakeDB's CreateVerification to the interface
// method name shared with principal creation.
type verificationStore struct{ *fakeDB }

func (v verificationStore) Create(ctx context.Context, owner model.PrincipalRef, code, tok string, typ model.VerificationType, expiresAt time.Time) error {
	return v.fakeDB.CreateVerification(ctx, owner, code, tok, typ, expiresAt)
}

type fakePublisher struct {
	events chan queue.EmailEvent
}

func (f *fakePublisher) PublishEmail(_ context.Context, ev queue.EmailEvent) error {
	f.events <- ev
	return nil
}

type fakeImageStore struct {
	saved []string // names passed to SaveImage
}

func (f *fakeImageStore) SaveImage(_ context.Context, name string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.saved = append(f.saved, name)
	return "uploads/" + name, nil
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

// ----- fixture -----

type authTestFixture struct {
	db        *fakeDB
	tokens    *token.Service
	publisher *fakePublisher
	images    *fakeImageStore
	handler   *handler.AuthHandler
	echo      *echo.Echo
}

func setupAuthTestFixture(t *testing.T) *authTestFixture {
	t.Helper()

	cfg := config.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		ResetSecret:   "reset-secret",
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		ResetTTL:      4 * time.Minute,
		BcryptCost:    bcrypt.MinCost,
		CookieSuffix:  "sm_management",
	}

	db := newFakeDB()
	tokens := token.NewService(cfg)
	publisher := &fakePublisher{events: make(chan queue.EmailEvent, 8)}
	images := &fakeImageStore{}

	stores := handler.AuthStores{
		Principals:    db,
		Sessions:      db,
		Roles:         db,
		Verifications: verificationStore{db},
	}
	// The runner mimics transactional rollback: an error from fn restores
	// every mutable collection to its pre-step snapshot.
	tx := func(_ context.Context, fn func(handler.AuthStores) error) error {
		sessions := append([]model.Session(nil), db.sessions...)
		verifications := append([]model.VerificationToken(nil), db.verifications...)
		principals := make(map[model.PrincipalRef]*model.Principal, len(db.principals))
		for k, v := range db.principals {
			principals[k] = v
		}
		assignments := make(map[model.PrincipalRef]string, len(db.assignments))
		for k, v := range db.assignments {
			assignments[k] = v
		}
		if err := fn(stores); err != nil {
			db.sessions = sessions
			db.verifications = verifications
			db.principals = principals
			db.assignments = assignments
			return err
		}
		return nil
	}

	return &authTestFixture{
		db:        db,
		tokens:    tokens,
		publisher: publisher,
		images:    images,
		handler: handler.NewAuthHandler(
			cfg, tokens,
			utils.NewCookieBinder(cfg.CookieSuffix, cfg.RefreshTTL),
			stores, tx, publisher, images, testLogger(),
		),
		echo: echo.New(),
	}
}

func (f *authTestFixture) request(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Host = testHost
	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

// seedAccount adds a principal whose password is "correct-horse".
func (f *authTestFixture) seedAccount(t *testing.T, kind model.Kind, email string) *model.Principal {
	t.Helper()
	hash, err := utils.HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)
	return f.db.add(&model.Principal{
		Kind: kind, Name: "Seeded", Email: email, PasswordHash: hash,
	})
}

func (f *authTestFixture) waitEvent(t *testing.T) queue.EmailEvent {
	t.Helper()
	select {
	case ev := <-f.publisher.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no email event published")
		return queue.EmailEvent{}
	}
}

func (f *authTestFixture) requireNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-f.publisher.events:
		t.Fatalf("unexpected email event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// ----- register -----

func TestRegister(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodPost, "/api/v1/register",
		`{"school":"Acme High","name":"Ada","email":"Ada@Acme.com","password":"longenough"}`)
	require.NoError(t, f.handler.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Body carries only the access token; it must verify as an admin token
	// for the lowercased email.
	body := decodeBody(t, rec)
	claims, err := f.tokens.VerifyAccessToken(body["accessToken"].(string))
	require.NoError(t, err)
	require.Equal(t, "ada@acme.com", claims.User.Email)
	require.Equal(t, model.KindAdmin, claims.User.Role)

	// The refresh token travels only in the tenant cookie and matches the
	// persisted session.
	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	_, err = f.tokens.VerifyRefreshToken(ck.Value)
	require.NoError(t, err)

	admin, err := f.db.FindByEmail(context.Background(), model.KindAdmin, "ada@acme.com")
	require.NoError(t, err)
	require.Equal(t, "Acme High", admin.School)
	require.True(t, utils.VerifyPassword(admin.PasswordHash, "longenough"))

	sessions := f.db.sessionsFor(admin.Ref())
	require.Len(t, sessions, 1)
	require.Equal(t, ck.Value, sessions[0].RefreshToken)

	require.Equal(t, "admin", f.db.assignments[admin.Ref()])

	require.Len(t, f.db.verifications, 1)
	v := f.db.verifications[0]
	require.Equal(t, model.VerificationEmail, v.Type)
	require.Len(t, v.Code, 8)

	ev := f.waitEvent(t)
	require.Equal(t, queue.EmailVerification, ev.Type)
	require.Equal(t, "ada@acme.com", ev.To)
	require.Equal(t, v.Code, ev.Code)
	require.Equal(t, v.Token, ev.Token)
}

// Registering via a multipart form with a profile image stores the file
// and records its path on the new admin row.
func TestRegisterWithProfileImage(t *testing.T) {
	f := setupAuthTestFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, value := range map[string]string{
		"school":   "Acme High",
		"name":     "Ada",
		"email":    "ada@acme.com",
		"password": "longenough",
	} {
		require.NoError(t, mw.WriteField(field, value))
	}
	part, err := mw.CreateFormFile("image", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Host = testHost
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)

	require.NoError(t, f.handler.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, f.images.saved, 1)
	require.True(t, strings.HasSuffix(f.images.saved[0], ".png"))

	admin, err := f.db.FindByEmail(context.Background(), model.KindAdmin, "ada@acme.com")
	require.NoError(t, err)
	require.Equal(t, "uploads/"+f.images.saved[0], admin.Image)

	f.waitEvent(t)
}

func TestRegisterCollectsFieldErrors(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodPost, "/api/v1/register",
		`{"school":"","name":" ","email":"not-an-email","password":"short"}`)
	require.NoError(t, f.handler.Register(c))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody(t, rec)
	errs := body["errors"].(map[string]any)
	require.Len(t, errs, 4)
	require.Contains(t, errs, "school")
	require.Contains(t, errs, "name")
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "password")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := setupAuthTestFixture(t)
	f.seedAccount(t, model.KindAdmin, "taken@acme.com")

	c, rec := f.request(http.MethodPost, "/api/v1/register",
		`{"school":"Acme High","name":"Ada","email":"taken@acme.com","password":"longenough"}`)
	require.NoError(t, f.handler.Register(c))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "Email already exists", decodeBody(t, rec)["message"])
	require.Empty(t, f.db.sessions)
}

// ----- login -----

func TestLogin(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindTeacher, "t@acme.com")

	c, rec := f.request(http.MethodPost, "/api/v1/login",
		`{"email":"t@acme.com","password":"correct-horse","role":"teacher"}`)
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	claims, err := f.tokens.VerifyAccessToken(decodeBody(t, rec)["accessToken"].(string))
	require.NoError(t, err)
	require.Equal(t, model.KindTeacher, claims.User.Role)

	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	sessions := f.db.sessionsFor(p.Ref())
	require.Len(t, sessions, 1)
	require.Equal(t, ck.Value, sessions[0].RefreshToken)
}

// Wrong password and unknown email answer identically so the endpoint
// cannot enumerate accounts.
func TestLoginBadCredentials(t *testing.T) {
	f := setupAuthTestFixture(t)
	f.seedAccount(t, model.KindTeacher, "t@acme.com")

	for _, body := range []string{
		`{"email":"t@acme.com","password":"wrong","role":"teacher"}`,
		`{"email":"nobody@acme.com","password":"correct-horse","role":"teacher"}`,
		// Right credentials but the wrong table.
		`{"email":"t@acme.com","password":"correct-horse","role":"student"}`,
	} {
		c, rec := f.request(http.MethodPost, "/api/v1/login", body)
		require.NoError(t, f.handler.Login(c))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Invalid email or password", decodeBody(t, rec)["message"])
	}
	require.Empty(t, f.db.sessions)
}

func TestLoginSuspended(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")
	p.Suspended = true

	c, rec := f.request(http.MethodPost, "/api/v1/login",
		`{"email":"s@acme.com","password":"correct-horse","role":"staff"}`)
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusLocked, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodPost, "/api/v1/login",
		`{"email":"","password":"","role":"superuser"}`)
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	errs := decodeBody(t, rec)["errors"].(map[string]any)
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "password")
	require.Contains(t, errs, "role")
}

// A stale cookie from a previous session on the same device is revoked
// before the new session is created.
func TestLoginRevokesStaleCookieSession(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindTeacher, "t@acme.com")

	stale, _, err := f.tokens.NewRefreshToken("t@acme.com", model.KindTeacher)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), stale, "old device"))

	c, rec := f.request(http.MethodPost, "/api/v1/login",
		`{"email":"t@acme.com","password":"correct-horse","role":"teacher"}`)
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: stale})
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := f.db.sessionsFor(p.Ref())
	require.Len(t, sessions, 1)
	require.NotEqual(t, stale, sessions[0].RefreshToken)
}

// The stale session is retired even when the credentials fail: revocation
// happens before the password check and outside the session transaction,
// so the rollback of a failed login cannot resurrect it.
func TestLoginFailureStillRetiresStaleSession(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindTeacher, "t@acme.com")

	stale, _, err := f.tokens.NewRefreshToken("t@acme.com", model.KindTeacher)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), stale, "old device"))

	c, rec := f.request(http.MethodPost, "/api/v1/login",
		`{"email":"t@acme.com","password":"wrong","role":"teacher"}`)
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: stale})
	require.NoError(t, f.handler.Login(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// No session row survives and the cookie pointing at it is cleared.
	require.Empty(t, f.db.sessionsFor(p.Ref()))
	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	require.Negative(t, ck.MaxAge)
}

// ----- refresh -----

func TestRefreshRotatesInPlace(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStudent, "kid@acme.com")

	old, _, err := f.tokens.NewRefreshToken("kid@acme.com", model.KindStudent)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), old, "phone"))

	c, rec := f.request(http.MethodGet, "/api/v1/refresh-token", "")
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: old})
	require.NoError(t, f.handler.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = f.tokens.VerifyAccessToken(decodeBody(t, rec)["accessToken"].(string))
	require.NoError(t, err)

	// The session row was rotated, not replaced: same device label, new
	// token, and the old token no longer resolves.
	sessions := f.db.sessionsFor(p.Ref())
	require.Len(t, sessions, 1)
	require.NotEqual(t, old, sessions[0].RefreshToken)
	require.Equal(t, "phone", sessions[0].DeviceLabel)

	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	require.Equal(t, sessions[0].RefreshToken, ck.Value)
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodGet, "/api/v1/refresh-token", "")
	require.NoError(t, f.handler.Refresh(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshWithInvalidToken(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodGet, "/api/v1/refresh-token", "")
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: "garbage"})
	require.NoError(t, f.handler.Refresh(c))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

// A refresh token with a valid signature that is gone from the registry
// has been rotated away already: that is replay, and every session of the
// claimed principal is revoked.
func TestRefreshReuseDetection(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStudent, "kid@acme.com")
	other := f.seedAccount(t, model.KindTeacher, "t@acme.com")

	replayed, _, err := f.tokens.NewRefreshToken("kid@acme.com", model.KindStudent)
	require.NoError(t, err)
	current, _, err := f.tokens.NewRefreshToken("kid@acme.com", model.KindStudent)
	require.NoError(t, err)
	otherTok, _, err := f.tokens.NewRefreshToken("t@acme.com", model.KindTeacher)
	require.NoError(t, err)

	// Only the current token is registered; replayed was rotated out.
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), current, "phone"))
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), current+"-laptop", "laptop"))
	require.NoError(t, f.db.Create(context.Background(), other.Ref(), otherTok, "desk"))

	c, rec := f.request(http.MethodGet, "/api/v1/refresh-token", "")
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: replayed})
	require.NoError(t, f.handler.Refresh(c))
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Every session of the replayed principal is gone; other principals
	// are untouched.
	require.Empty(t, f.db.sessionsFor(p.Ref()))
	require.Len(t, f.db.sessionsFor(other.Ref()), 1)

	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	require.Negative(t, ck.MaxAge)
}

// ----- logout -----

func TestLogout(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindTeacher, "t@acme.com")

	tok, _, err := f.tokens.NewRefreshToken("t@acme.com", model.KindTeacher)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), tok, "phone"))
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), tok+"-laptop", "laptop"))

	c, rec := f.request(http.MethodPost, "/api/v1/logout", "")
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: tok})
	require.NoError(t, f.handler.Logout(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the cookie's session is revoked.
	sessions := f.db.sessionsFor(p.Ref())
	require.Len(t, sessions, 1)
	require.Equal(t, "laptop", sessions[0].DeviceLabel)

	ck := findCookie(rec, testCookieName)
	require.NotNil(t, ck)
	require.Negative(t, ck.MaxAge)
}

func TestLogoutWithoutCookie(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodPost, "/api/v1/logout", "")
	require.NoError(t, f.handler.Logout(c))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindTeacher, "t@acme.com")
	other := f.seedAccount(t, model.KindTeacher, "other@acme.com")

	tok, _, err := f.tokens.NewRefreshToken("t@acme.com", model.KindTeacher)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), tok, "phone"))
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), tok+"-laptop", "laptop"))
	require.NoError(t, f.db.Create(context.Background(), other.Ref(), "other-token", "desk"))

	c, rec := f.request(http.MethodPost, "/api/v1/logout-all", "")
	c.Request().AddCookie(&http.Cookie{Name: testCookieName, Value: tok})
	middleware.SetUser(c, &middleware.AuthUser{ID: p.ID, Email: p.Email, Role: p.Kind})

	require.NoError(t, f.handler.LogoutAll(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Empty(t, f.db.sessionsFor(p.Ref()))
	require.Len(t, f.db.sessionsFor(other.Ref()), 1)
}

// ----- password reset -----

func TestResetPasswordIssuesCode(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")

	c, rec := f.request(http.MethodPost, "/api/v1/reset-password",
		`{"email":"s@acme.com","role":"staff"}`)
	require.NoError(t, f.handler.ResetPassword(c))
	require.Equal(t, http.StatusOK, rec.Code)

	ev := f.waitEvent(t)
	require.Equal(t, queue.EmailPasswordReset, ev.Type)
	require.Equal(t, "s@acme.com", ev.To)

	require.Len(t, f.db.verifications, 1)
	v := f.db.verifications[0]
	require.Equal(t, model.VerificationPasswordReset, v.Type)
	require.Equal(t, p.Ref(), v.Principal)
	require.Equal(t, ev.Code, v.Code)
}

// Unknown accounts get the same 200 as known ones, with no side effects.
func TestResetPasswordUnknownEmail(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodPost, "/api/v1/reset-password",
		`{"email":"nobody@acme.com","role":"staff"}`)
	require.NoError(t, f.handler.ResetPassword(c))
	require.Equal(t, http.StatusOK, rec.Code)

	f.requireNoEvent(t)
	require.Empty(t, f.db.verifications)
}

func TestVerifyResetCode(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")

	require.NoError(t, f.db.CreateVerification(context.Background(), p.Ref(),
		"12345678", "opaque-token", model.VerificationPasswordReset,
		time.Now().UTC().Add(10*time.Minute)))

	c, rec := f.request(http.MethodPost, "/api/v1/verify-reset-code",
		`{"code":"12345678","token":"opaque-token"}`)
	require.NoError(t, f.handler.VerifyResetCode(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// The returned token is a reset token carrying {id, role}.
	claims, err := f.tokens.VerifyResetToken(decodeBody(t, rec)["token"].(string))
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.User.ID)
	require.Equal(t, model.KindStaff, claims.User.Role)
}

func TestVerifyResetCodeRejections(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")

	// Expired reset row.
	require.NoError(t, f.db.CreateVerification(context.Background(), p.Ref(),
		"11111111", "expired-token", model.VerificationPasswordReset,
		time.Now().UTC().Add(-time.Minute)))
	// An EMAIL row must not mint a reset token.
	require.NoError(t, f.db.CreateVerification(context.Background(), p.Ref(),
		"22222222", "email-token", model.VerificationEmail,
		time.Now().UTC().Add(time.Hour)))

	cases := []struct {
		body string
		want int
	}{
		{`{"code":"","token":""}`, http.StatusBadRequest},
		{`{"code":"99999999","token":"no-such"}`, http.StatusNotFound},
		{`{"code":"22222222","token":"email-token"}`, http.StatusNotFound},
		{`{"code":"11111111","token":"expired-token"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		c, rec := f.request(http.MethodPost, "/api/v1/verify-reset-code", tc.body)
		require.NoError(t, f.handler.VerifyResetCode(c))
		require.Equal(t, tc.want, rec.Code, "body %s", tc.body)
	}
}

func TestUpdatePassword(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), "session-1", "phone"))
	require.NoError(t, f.db.CreateVerification(context.Background(), p.Ref(),
		"12345678", "opaque-token", model.VerificationPasswordReset,
		time.Now().UTC().Add(10*time.Minute)))

	reset, _, err := f.tokens.NewResetToken(p.ID, p.Kind)
	require.NoError(t, err)

	c, rec := f.request(http.MethodPost, "/api/v1/update-password",
		`{"password":"brand-new-pass"}`)
	c.Request().Header.Set("Authorization", "Bearer "+reset)
	require.NoError(t, f.handler.UpdatePassword(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.True(t, utils.VerifyPassword(p.PasswordHash, "brand-new-pass"))
	require.Empty(t, f.db.sessionsFor(p.Ref()))
	require.Empty(t, f.db.verifications)
}

// An expired reset token is rejected before any write happens: the
// password stays, sessions stay.
func TestUpdatePasswordExpiredToken(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), "session-1", "phone"))
	oldHash := p.PasswordHash

	past := token.NewService(config.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		ResetSecret:   "reset-secret",
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		ResetTTL:      4 * time.Minute,
	}, token.WithNow(func() time.Time { return time.Now().Add(-10 * time.Minute) }))
	expired, _, err := past.NewResetToken(p.ID, p.Kind)
	require.NoError(t, err)

	c, rec := f.request(http.MethodPost, "/api/v1/update-password",
		`{"password":"brand-new-pass"}`)
	c.Request().Header.Set("Authorization", "Bearer "+expired)
	require.NoError(t, f.handler.UpdatePassword(c))
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.Equal(t, oldHash, p.PasswordHash)
	require.Len(t, f.db.sessionsFor(p.Ref()), 1)
}

func TestUpdatePasswordTooShort(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindStaff, "s@acme.com")

	reset, _, err := f.tokens.NewResetToken(p.ID, p.Kind)
	require.NoError(t, err)

	c, rec := f.request(http.MethodPost, "/api/v1/update-password",
		`{"password":"short"}`)
	c.Request().Header.Set("Authorization", "Bearer "+reset)
	require.NoError(t, f.handler.UpdatePassword(c))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ----- email verification -----

func TestVerifyEmail(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindAdmin, "a@acme.com")
	require.NoError(t, f.db.Create(context.Background(), p.Ref(), "pre-verify", "phone"))
	require.NoError(t, f.db.CreateVerification(context.Background(), p.Ref(),
		"12345678", "opaque-token", model.VerificationEmail,
		time.Now().UTC().Add(time.Hour)))

	c, rec := f.request(http.MethodPost, "/api/v1/verify-email",
		`{"code":"12345678","token":"opaque-token"}`)
	require.NoError(t, f.handler.VerifyEmail(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, p.EmailVerifiedAt)
	require.Empty(t, f.db.verifications)
	// Sessions predating mailbox proof are cut loose.
	require.Empty(t, f.db.sessionsFor(p.Ref()))
}

// Resending for an already verified account answers 200 without issuing
// anything.
func TestResendVerificationAlreadyVerified(t *testing.T) {
	f := setupAuthTestFixture(t)
	p := f.seedAccount(t, model.KindAdmin, "a@acme.com")
	now := time.Now().UTC()
	p.EmailVerifiedAt = &now

	c, rec := f.request(http.MethodPost, "/api/v1/resend-verification",
		`{"email":"a@acme.com","role":"admin"}`)
	require.NoError(t, f.handler.ResendVerification(c))
	require.Equal(t, http.StatusOK, rec.Code)

	f.requireNoEvent(t)
	require.Empty(t, f.db.verifications)
}

// ----- me -----

func TestMe(t *testing.T) {
	f := setupAuthTestFixture(t)

	c, rec := f.request(http.MethodGet, "/api/v1/me", "")
	middleware.SetUser(c, &middleware.AuthUser{
		ID: 3, Name: "Sam", Email: "s@acme.com", Role: model.KindStaff,
		Permissions: []string{"view_classes"},
	})
	require.NoError(t, f.handler.Me(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, "s@acme.com", body["email"])
	require.Equal(t, string(model.KindStaff), fmt.Sprint(body["role"]))
}
