package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"unimarket-backend/internal/application/emails"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	VerificationTTL    = 24 * time.Hour
	ResendCooldown     = 60 * time.Second
	cooldownKeyPrefix  = "verify:cooldown:"
	verificationTokenN = 14 // bytes; 28 hex characters
)

// LoginInput for login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput for the registration request body.
type RegisterInput struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// SessionUserShape is the object stored in session and returned by /me.
type SessionUserShape struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

// UserFinder abstracts user lookup by email+password (for production GORM or test doubles).
type UserFinder interface {
	FindByEmailAndPassword(email, password string) (*domain.User, error)
}

// GormUserFinder implements UserFinder using GORM and bcrypt.
type GormUserFinder struct{ DB *gorm.DB }

func (g *GormUserFinder) FindByEmailAndPassword(email, password string) (*domain.User, error) {
	return LoginUser(g.DB, LoginInput{Email: email, Password: password})
}

// LoginUser finds user by email and verifies password.
func LoginUser(db *gorm.DB, input LoginInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, domain.ErrEmailPasswordRequired
	}
	var u domain.User
	if err := db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidEmail
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, domain.ErrInvalidEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrIncorrectPassword
	}
	return &u, nil
}

// VerifyUser validates the session user and returns the shape for /me.
func VerifyUser(sessionUser interface{}) (*SessionUserShape, error) {
	if sessionUser == nil {
		return nil, domain.ErrNotAuthenticated
	}
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	userID, _ := m["user_id"].(string)
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	verified, _ := m["verified"].(bool)
	return &SessionUserShape{
		UserID:   userID,
		Fullname: str(m["fullname"]),
		Email:    str(m["email"]),
		Role:     str(m["role"]),
		Verified: verified,
	}, nil
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Service owns registration and email verification.
type Service struct {
	DB       *gorm.DB
	Rdb      *redis.Client // resend cooldown; without it the last-sent timestamp is used
	Mailer   emails.Sender
	Origin   string
	Now      func() time.Time
	NewToken func() (string, error)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func newVerificationToken() (string, error) {
	b := make([]byte, verificationTokenN)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Register creates an unverified student account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, domain.ErrEmailPasswordRequired
	}
	if !validation.IsValidEmail(email) {
		return nil, domain.Validation("Please enter a valid email address")
	}
	name := strings.TrimSpace(in.FullName)
	if name != "" && !validation.IsValidFullname(name) {
		return nil, domain.Validation("Name may only contain letters, spaces, hyphens and apostrophes")
	}
	if !validation.IsValidPassword(in.Password) {
		return nil, domain.Validation("Password must be at least 8 characters with a letter, a number and a special character")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := domain.User{
		Email:        email,
		FullName:     name,
		PasswordHash: string(hash),
		Role:         domain.RoleStudent,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrEmailTaken
		}
		return tx.Create(&u).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", u.ID.String()).Msg("account registered")
	return &u, nil
}

// FindUser loads the current user for handlers that need fresh flags (verified, credits).
func (s *Service) FindUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// VerificationLink is the URL emailed to the user.
func VerificationLink(origin string, userID uuid.UUID, token string) string {
	q := url.Values{}
	q.Set("uid", userID.String())
	q.Set("token", token)
	return strings.TrimRight(origin, "/") + "/Verify?" + q.Encode()
}

// RequestVerification issues a fresh token and emails the link, at most once per cooldown window.
func (s *Service) RequestVerification(ctx context.Context, userID uuid.UUID) error {
	u, err := s.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.Verified {
		return nil
	}
	now := s.now()
	if err := s.claimCooldown(ctx, u, now); err != nil {
		return err
	}

	gen := s.NewToken
	if gen == nil {
		gen = newVerificationToken
	}
	token, err := gen()
	if err != nil {
		return err
	}
	expires := now.Add(VerificationTTL)
	if err := s.DB.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"verification_token":        token,
		"verification_expires_at":   expires,
		"last_verification_sent_at": now,
	}).Error; err != nil {
		return err
	}

	if s.Mailer == nil {
		return domain.ErrEmailDelivery.Withf("Email delivery is not configured")
	}
	if err := s.Mailer.SendVerification(ctx, u.Email, u.FullName, VerificationLink(s.Origin, u.ID, token)); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("verification email failed")
		return domain.ErrEmailDelivery
	}
	log.Info().Str("user_id", userID.String()).Msg("verification email sent")
	return nil
}

func (s *Service) claimCooldown(ctx context.Context, u *domain.User, now time.Time) error {
	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, cooldownKeyPrefix+u.ID.String(), now.Unix(), ResendCooldown).Result()
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrResendCooldown
		}
		return nil
	}
	if u.LastVerificationSentAt != nil && now.Sub(*u.LastVerificationSentAt) < ResendCooldown {
		return domain.ErrResendCooldown
	}
	return nil
}

// VerifyEmail marks the caller verified. The link must belong to the caller; repeating it is harmless.
func (s *Service) VerifyEmail(ctx context.Context, userID, linkUserID uuid.UUID, token string) (*domain.User, error) {
	if userID != linkUserID {
		return nil, domain.ErrVerificationInvalid.Withf("This verification link belongs to a different account")
	}
	u, err := s.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Verified {
		return u, nil
	}
	if u.VerificationToken == nil || subtle.ConstantTimeCompare([]byte(*u.VerificationToken), []byte(strings.TrimSpace(token))) != 1 {
		return nil, domain.ErrVerificationInvalid
	}
	if u.VerificationExpiresAt == nil || !s.now().Before(*u.VerificationExpiresAt) {
		return nil, domain.ErrVerificationExpired
	}
	if err := s.DB.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"verified":                true,
		"verification_token":      nil,
		"verification_expires_at": nil,
	}).Error; err != nil {
		return nil, err
	}
	u.Verified = true
	u.VerificationToken = nil
	u.VerificationExpiresAt = nil
	log.Info().Str("user_id", userID.String()).Msg("email verified")
	return u, nil
}
