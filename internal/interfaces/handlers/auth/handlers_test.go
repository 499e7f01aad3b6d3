package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	accountsvc "unimarket-backend/internal/application/accounts"
	"unimarket-backend/internal/application/emails"
	walletsvc "unimarket-backend/internal/application/wallets"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/database"
	"unimarket-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUserFinder returns the configured user for password123.
type fakeUserFinder struct {
	user *domain.User
	err  error
}

func (f *fakeUserFinder) FindByEmailAndPassword(email, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user != nil && f.user.Email == email && password == "password123" {
		return f.user, nil
	}
	if f.user != nil && f.user.Email == email {
		return nil, domain.ErrIncorrectPassword
	}
	return nil, domain.ErrInvalidEmail
}

type captureMailer struct{ links []string }

func (m *captureMailer) SendVerification(_ context.Context, _, _, link string) error {
	m.links = append(m.links, link)
	return nil
}

func (m *captureMailer) SendHandoffCode(context.Context, emails.HandoffEmail) error { return nil }

func setupAuthHandlers(t *testing.T, finder accountsvc.UserFinder) (*Handlers, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	h := &Handlers{
		UserFinder: finder,
		Rdb:        rdb,
		Config:     middleware.SessionConfig{},
	}
	return h, rdb
}

func withAccounts(t *testing.T, h *Handlers) (*gorm.DB, *captureMailer) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	mail := &captureMailer{}
	h.Accounts = &accountsvc.Service{DB: db, Rdb: h.Rdb, Mailer: mail, Origin: "https://unimarket.app"}
	h.Wallets = &walletsvc.Service{DB: db}
	h.UserFinder = &accountsvc.GormUserFinder{DB: db}
	return db, mail
}

func postJSON(path string, v interface{}) *http.Request {
	body, _ := json.Marshal(v)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	b, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestLogin_EmptyBody(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{}})
	app := fiber.New()
	app.Post("/login", h.Login)

	req := httptest.NewRequest("POST", "/login", nil)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_MissingCredentials(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp, err := app.Test(postJSON("/login", map[string]string{"email": "a@b.com"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_InvalidEmail(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp, err := app.Test(postJSON("/login", map[string]string{"email": "nobody@uni.ac.uk", "password": "any"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_IncorrectPassword(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{ID: uuid.New(), Email: "bea@uni.ac.uk", FullName: "Bea", Role: domain.RoleStudent}})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp, err := app.Test(postJSON("/login", map[string]string{"email": "bea@uni.ac.uk", "password": "wrong"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Incorrect Password", decode(t, resp)["error"].(map[string]interface{})["message"])
}

func TestLogin_Success(t *testing.T) {
	uid := uuid.New()
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{ID: uid, Email: "bea@uni.ac.uk", FullName: "Bea", Role: domain.RoleStudent, Verified: true}})
	app := fiber.New()
	app.Post("/login", h.Login)

	resp, err := app.Test(postJSON("/login", map[string]string{"email": "bea@uni.ac.uk", "password": "password123"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "Login successful", out["message"])
	user := out["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "bea@uni.ac.uk", user["email"])
	assert.Equal(t, true, user["verified"])

	cookies := resp.Header.Values("Set-Cookie")
	require.NotEmpty(t, cookies)
	assert.Contains(t, cookies[0], "unimarket.sid=s%3A")

	members, err := rdb.SMembers(context.Background(), "user_sessions:"+uid.String()).Result()
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestLogin_NilUserFinder(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	app := fiber.New()
	app.Post("/login", h.Login)

	resp, err := app.Test(postJSON("/login", map[string]string{"email": "a@b.com", "password": "pass"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestMe_NoSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", h.Me)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMe_WithSessionUserInLocals(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id":  "550e8400-e29b-41d4-a716-446655440000",
			"fullname": "Bea",
			"email":    "bea@uni.ac.uk",
			"role":     "student",
			"verified": false,
		})
		return h.Me(c)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, "Authenticated", out["message"])
	user := out["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "bea@uni.ac.uk", user["email"])
	assert.Equal(t, false, user["verified"])
}

func TestLogout_NoSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Delete("/logout", h.Logout)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Values("Set-Cookie"))
}

func TestLogout_RemovesSession(t *testing.T) {
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{})
	ctx := context.Background()
	uid := "550e8400-e29b-41d4-a716-446655440000"
	require.NoError(t, rdb.Set(ctx, "session:sid-1", "{}", 0).Err())
	require.NoError(t, rdb.SAdd(ctx, "user_sessions:"+uid, "sid-1").Err())

	app := fiber.New()
	app.Delete("/logout", func(c *fiber.Ctx) error {
		c.Locals("session_id", "sid-1")
		c.Locals("user", map[string]interface{}{"user_id": uid})
		return h.Logout(c)
	})
	resp, err := app.Test(httptest.NewRequest("DELETE", "/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	n, _ := rdb.Exists(ctx, "session:sid-1").Result()
	assert.Zero(t, n)
	members, _ := rdb.SMembers(ctx, "user_sessions:"+uid).Result()
	assert.Empty(t, members)
}

func TestLogout_AllSessions(t *testing.T) {
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{})
	ctx := context.Background()
	uid := "550e8400-e29b-41d4-a716-446655440000"
	for _, sid := range []string{"sid-1", "sid-2"} {
		require.NoError(t, rdb.Set(ctx, "session:"+sid, "{}", 0).Err())
		require.NoError(t, rdb.SAdd(ctx, "user_sessions:"+uid, sid).Err())
	}

	app := fiber.New()
	app.Delete("/logout", func(c *fiber.Ctx) error {
		c.Locals("session_id", "sid-1")
		c.Locals("user", map[string]interface{}{"user_id": uid})
		return h.Logout(c)
	})
	resp, err := app.Test(httptest.NewRequest("DELETE", "/logout?all=true", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	n, _ := rdb.Exists(ctx, "session:sid-1", "session:sid-2", "user_sessions:"+uid).Result()
	assert.Zero(t, n)
}

func TestRegister_CreatesAccountWalletAndSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	db, _ := withAccounts(t, h)
	app := fiber.New()
	app.Post("/register", h.Register)

	resp, err := app.Test(postJSON("/register", map[string]string{
		"email": "bea@uni.ac.uk", "full_name": "Bea", "password": "correct-horse-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	user := decode(t, resp)["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, false, user["verified"])
	assert.NotEmpty(t, resp.Header.Values("Set-Cookie"))

	var wallets int64
	db.Model(&domain.VirtualWallet{}).Count(&wallets)
	assert.Equal(t, int64(1), wallets)

	resp, err = app.Test(postJSON("/register", map[string]string{
		"email": "bea@uni.ac.uk", "password": "correct-horse-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(postJSON("/register", map[string]string{"email": "x@uni.ac.uk", "password": "weak"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestVerificationFlow(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	_, mail := withAccounts(t, h)
	u, err := h.Accounts.Register(context.Background(), accountsvc.RegisterInput{Email: "bea@uni.ac.uk", Password: "correct-horse-1"})
	require.NoError(t, err)

	app := fiber.New()
	asUser := func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": u.ID.String(), "email": u.Email, "role": u.Role})
		return c.Next()
	}
	app.Post("/verification/request", asUser, h.RequestVerification)
	app.Post("/verification/confirm", asUser, h.VerifyEmail)

	resp, err := app.Test(httptest.NewRequest("POST", "/verification/request", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, mail.links, 1)

	resp, err = app.Test(httptest.NewRequest("POST", "/verification/request", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	link, err := url.Parse(mail.links[0])
	require.NoError(t, err)
	resp, err = app.Test(postJSON("/verification/confirm", map[string]string{"uid": u.ID.String(), "token": "bogus"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(postJSON("/verification/confirm", map[string]string{
		"uid": link.Query().Get("uid"), "token": link.Query().Get("token"),
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	user := decode(t, resp)["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, true, user["verified"])
}

func TestRequestVerification_Unauthenticated(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	withAccounts(t, h)
	app := fiber.New()
	app.Post("/verification/request", h.RequestVerification)

	resp, err := app.Test(httptest.NewRequest("POST", "/verification/request", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
