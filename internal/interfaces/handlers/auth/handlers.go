package auth

import (
	"context"
	"errors"

	accountsvc "unimarket-backend/internal/application/accounts"
	walletsvc "unimarket-backend/internal/application/wallets"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder accountsvc.UserFinder
	Accounts   *accountsvc.Service
	Wallets    *walletsvc.Service // optional; new accounts get their demo card and wallet
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

// LoginRequest body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

func sessionUser(u *domain.User) middleware.SessionUser {
	return middleware.SessionUser{
		UserID:   u.ID.String(),
		Fullname: u.FullName,
		Email:    u.Email,
		Role:     u.Role,
		Verified: u.Verified,
	}
}

func userBody(su middleware.SessionUser) fiber.Map {
	return fiber.Map{
		"user_id":  su.UserID,
		"fullname": su.Fullname,
		"email":    su.Email,
		"role":     su.Role,
		"verified": su.Verified,
	}
}

// startSession regenerates the session id, stores the user, tracks the id under user_sessions:<id> and sets the cookie.
func (h *Handlers) startSession(c *fiber.Ctx, u *domain.User) error {
	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, sessionUser(u))

	if err := h.Rdb.SAdd(context.Background(), middleware.UserSessionsPrefix+u.ID.String(), sessionID).Err(); err != nil {
		return err
	}
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)
	return nil
}

// Register POST /api/v1/auth/register: create the account, give it a demo wallet, and log it in.
func (h *Handlers) Register(c *fiber.Ctx) error {
	if h.Accounts == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req accountsvc.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrEmailPasswordRequired)
	}
	u, err := h.Accounts.Register(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	if h.Wallets != nil {
		if _, err := h.Wallets.InitializeUserData(c.UserContext(), u.ID); err != nil {
			log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("wallet initialization failed")
		}
	}
	if err := h.startSession(c, u); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Account created", fiber.Map{"user": userBody(sessionUser(u))}, nil)
}

// Login POST /api/v1/auth/login
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrEmailPasswordRequired)
	}
	if req.Email == "" || req.Password == "" {
		return response.FromError(c, domain.ErrEmailPasswordRequired)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(req.Email, req.Password)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Login successful", fiber.Map{"user": userBody(sessionUser(user))}, nil)
}

// Me GET /api/v1/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionUser := middleware.GetUser(c)
	if middleware.GetSessionID(c) != "" && sessionUser == nil {
		log.Debug().Str("path", "/auth/me").Msg("session id present but no user in session data")
	}

	user, err := accountsvc.VerifyUser(sessionUser)
	if err != nil {
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

// Logout DELETE /api/v1/auth/logout. With ?all=true every session of the user is destroyed.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := context.Background()

	userID, userErr := middleware.CurrentUserID(c)
	if c.QueryBool("all") && userErr == nil {
		if err := middleware.DestroyUserSessions(ctx, h.Rdb, userID.String()); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to destroy user sessions")
		}
	} else if sessionID != "" {
		if userErr == nil {
			_ = h.Rdb.SRem(ctx, middleware.UserSessionsPrefix+userID.String(), sessionID).Err()
		}
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}

	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}

// RequestVerification POST /api/v1/auth/verification/request
func (h *Handlers) RequestVerification(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Accounts.RequestVerification(c.UserContext(), userID); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Verification email sent", nil, nil)
}

// VerifyEmail POST /api/v1/auth/verification/confirm. The session is refreshed so the verified flag takes effect immediately.
func (h *Handlers) VerifyEmail(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.FromError(c, domain.ErrVerificationInvalid)
	}
	linkUID, err := uuid.Parse(req.UID)
	if err != nil {
		return response.FromError(c, domain.ErrVerificationInvalid)
	}
	u, err := h.Accounts.VerifyEmail(c.UserContext(), userID, linkUID, req.Token)
	if err != nil {
		if !errors.Is(err, domain.ErrVerificationInvalid) && !errors.Is(err, domain.ErrVerificationExpired) {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("email verification failed")
		}
		return response.FromError(c, err)
	}
	middleware.SetSessionUser(c, sessionUser(u))
	return response.Success(c, "Email verified", fiber.Map{"user": userBody(sessionUser(u))}, nil)
}
