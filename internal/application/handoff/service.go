package handoff

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"unimarket-backend/internal/application/emails"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultCodeTTL     = 2 * time.Hour
	DefaultMaxAttempts = 5

	qrServiceURL = "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data="
)

type Service struct {
	DB          *gorm.DB
	Mailer      emails.Sender
	Events      events.Publisher
	Origin      string // deep links point here
	CodeTTL     time.Duration
	MaxAttempts int
	Now         func() time.Time
	NewCode     func() (string, error)
	NewToken    func() (string, error)
}

// Issued is returned to the seller only.
type Issued struct {
	Code       string    `json:"code"`
	Token      string    `json:"qr_token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Link       string    `json:"link"`
	QRImageURL string    `json:"qr_image_url"`
}

// View is the polling read model. Code, token and links are filled for the seller only.
type View struct {
	OrderID           uuid.UUID          `json:"order_id"`
	Status            domain.OrderStatus `json:"status"`
	Paid              bool               `json:"paid"`
	CodeIssued        bool               `json:"code_issued"`
	ExpiresAt         *time.Time         `json:"expires_at"`
	Expired           bool               `json:"expired"`
	AttemptsRemaining int                `json:"attempts_remaining"`
	ConfirmedAt       *time.Time         `json:"confirmed_at"`
	AutoReleaseTime   *time.Time         `json:"auto_release_time"`
	Code              string             `json:"code,omitempty"`
	Token             string             `json:"qr_token,omitempty"`
	Link              string             `json:"link,omitempty"`
	QRImageURL        string             `json:"qr_image_url,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

// RandomCode returns six uniform decimal digits, zero-padded.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// RandomToken returns 32 lowercase hex characters.
func RandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DeepLink is the URL encoded into the QR image and sent by email.
func DeepLink(origin string, orderID uuid.UUID, token string) string {
	q := url.Values{}
	q.Set("oid", orderID.String())
	q.Set("t", token)
	return strings.TrimRight(origin, "/") + "/VerifyHandoff?" + q.Encode()
}

// QRImageURL renders link as a scannable image via the public QR service.
func QRImageURL(link string) string {
	return qrServiceURL + url.QueryEscape(link)
}

func loadOrder(tx *gorm.DB, orderID uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	if err := tx.Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *Service) generate() (string, string, error) {
	newCode, newToken := s.NewCode, s.NewToken
	if newCode == nil {
		newCode = RandomCode
	}
	if newToken == nil {
		newToken = RandomToken
	}
	code, err := newCode()
	if err != nil {
		return "", "", fmt.Errorf("handoff: code: %w", err)
	}
	token, err := newToken()
	if err != nil {
		return "", "", fmt.Errorf("handoff: token: %w", err)
	}
	return code, token, nil
}

// GenerateCode issues a pickup code and QR token and moves the order to Ready.
// A live code cannot be replaced; the seller waits for expiry.
func (s *Service) GenerateCode(ctx context.Context, orderID, sellerID uuid.UUID) (*Issued, error) {
	code, token, err := s.generate()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expires := now.Add(s.codeTTL())

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.SellerID != sellerID {
			return domain.ErrNotSeller.Withf("Only the seller can generate a handoff code")
		}
		if !o.Status.Open() {
			return domain.ErrOrderNotPending
		}
		if !o.Paid() {
			return domain.ErrOrderNotPaid
		}
		if o.HandoffCode != nil && o.HandoffExpiresAt != nil && now.Before(*o.HandoffExpiresAt) {
			return domain.ActiveCodeExists(*o.HandoffExpiresAt)
		}
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ? AND handoff_attempts = ?", o.ID, o.Status, o.HandoffAttempts).
			Where("(handoff_code IS NULL OR handoff_expires_at <= ?)", now).
			Updates(map[string]interface{}{
				"handoff_code":         code,
				"handoff_qr_token":     token,
				"handoff_expires_at":   expires,
				"handoff_attempts":     0,
				"handoff_max_attempts": s.maxAttempts(),
				"status":               domain.OrderReady,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentUpdate
		}
		return tx.Create(domain.NewOrderEvent(o.ID, domain.EventHandoffCodeGenerated, &sellerID, map[string]interface{}{
			"expires_at": expires,
		})).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID.String()).Time("expires_at", expires).Msg("handoff code generated")
	events.Emit(ctx, s.Events, events.HandoffCodeCreated, orderID.String(), map[string]interface{}{
		"expires_at": expires,
	})
	link := DeepLink(s.Origin, orderID, token)
	return &Issued{Code: code, Token: token, ExpiresAt: expires, Link: link, QRImageURL: QRImageURL(link)}, nil
}

// checkVerifiable applies the shared preconditions of both verification paths, in order.
func checkVerifiable(o *domain.Order, buyerID uuid.UUID, now time.Time, allowed int) error {
	if o.BuyerID != buyerID {
		return domain.ErrNotBuyer.Withf("Only the buyer can confirm the handoff")
	}
	if !o.Status.Open() {
		return domain.ErrOrderNotPending
	}
	if !o.HandoffIssued() || o.HandoffExpiresAt == nil {
		return domain.ErrNoHandoffCode
	}
	if !now.Before(*o.HandoffExpiresAt) {
		return domain.ErrCodeExpired
	}
	if o.HandoffAttempts >= allowed {
		return domain.ErrAttemptsExceeded
	}
	return nil
}

func (s *Service) limit(o *domain.Order) int {
	if o.HandoffMaxAttempts > 0 {
		return o.HandoffMaxAttempts
	}
	return s.maxAttempts()
}

// VerifyCode completes the order when the buyer enters the seller's code. A wrong code
// consumes an attempt and that increment is committed even though the call fails.
func (s *Service) VerifyCode(ctx context.Context, orderID, buyerID uuid.UUID, input string) (*domain.Order, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, domain.Validation("Please enter the 6-digit code")
	}
	now := s.now()
	var out *domain.Order
	var rejected *domain.Error
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		allowed := s.limit(o)
		if err := checkVerifiable(o, buyerID, now, allowed); err != nil {
			return err
		}
		if o.HandoffCode == nil || subtle.ConstantTimeCompare([]byte(*o.HandoffCode), []byte(input)) != 1 {
			rejected, err = recordFailedAttempt(tx, o, buyerID, allowed)
			return err
		}
		out, err = complete(tx, o, buyerID, now, "code")
		return err
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		log.Info().Str("order_id", orderID.String()).Msg("handoff code rejected")
		return nil, rejected
	}
	s.completed(ctx, out, "code")
	return out, nil
}

// VerifyToken completes the order from the QR or deep-link path. A wrong token is simply an
// invalid link and does not consume an attempt.
func (s *Service) VerifyToken(ctx context.Context, orderID, buyerID uuid.UUID, token string) (*domain.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	now := s.now()
	var out *domain.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := checkVerifiable(o, buyerID, now, s.limit(o)); err != nil {
			return err
		}
		if o.HandoffQRToken == nil || subtle.ConstantTimeCompare([]byte(*o.HandoffQRToken), []byte(token)) != 1 {
			return domain.ErrInvalidToken
		}
		out, err = complete(tx, o, buyerID, now, "qr")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.completed(ctx, out, "qr")
	return out, nil
}

// ConfirmWithoutCode is the fallback when the seller never generated a code.
func (s *Service) ConfirmWithoutCode(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.Order, error) {
	now := s.now()
	var out *domain.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID {
			return domain.ErrNotBuyer.Withf("Only the buyer can confirm delivery")
		}
		if !o.Status.Open() {
			return domain.ErrOrderNotPending
		}
		if !o.Paid() {
			return domain.ErrOrderNotPaid
		}
		if o.HandoffExpiresAt != nil {
			return domain.ActiveCodeExists(*o.HandoffExpiresAt)
		}
		if o.HandoffQRToken != nil {
			return domain.ErrActiveCodeExists
		}
		out, err = complete(tx, o, buyerID, now, "manual")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.completed(ctx, out, "manual")
	return out, nil
}

// recordFailedAttempt persists attempts+1 guarded by the attempt count that was read, and returns
// the rejection to surface once the transaction commits.
func recordFailedAttempt(tx *gorm.DB, o *domain.Order, buyerID uuid.UUID, allowed int) (*domain.Error, error) {
	next := o.HandoffAttempts + 1
	res := tx.Model(&domain.Order{}).
		Where("id = ? AND status = ? AND handoff_attempts = ?", o.ID, o.Status, o.HandoffAttempts).
		Update("handoff_attempts", next)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConcurrentUpdate
	}
	if err := tx.Create(domain.NewOrderEvent(o.ID, domain.EventHandoffAttemptFailed, &buyerID, map[string]interface{}{
		"attempts": next,
	})).Error; err != nil {
		return nil, err
	}
	if next >= allowed {
		return domain.ErrAttemptsExceeded, nil
	}
	return domain.ErrCodeMismatch.With("attempts_remaining", allowed-next), nil
}

// complete is the single conditional transition to Completed shared by all confirmation paths.
func complete(tx *gorm.DB, o *domain.Order, buyerID uuid.UUID, now time.Time, via string) (*domain.Order, error) {
	q := tx.Model(&domain.Order{}).
		Where("id = ? AND status = ? AND handoff_attempts = ?", o.ID, o.Status, o.HandoffAttempts)
	if o.HandoffExpiresAt == nil {
		q = q.Where("handoff_expires_at IS NULL")
	}
	res := q.Updates(map[string]interface{}{
		"status":                      domain.OrderCompleted,
		"handoff_confirmed_by":        buyerID,
		"handoff_confirmed_at":        now,
		"handoff_code":                nil,
		"handoff_qr_token":            nil,
		"delivery_confirmed_by_buyer": true,
		"delivery_confirmed_at":       now,
		"completed_at":                now,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConcurrentUpdate
	}
	if err := tx.Create(domain.NewOrderEvent(o.ID, domain.EventOrderCompleted, &buyerID, map[string]interface{}{
		"via": via,
	})).Error; err != nil {
		return nil, err
	}
	o.Status = domain.OrderCompleted
	o.HandoffConfirmedBy = &buyerID
	o.HandoffConfirmedAt = &now
	o.HandoffCode = nil
	o.HandoffQRToken = nil
	o.DeliveryConfirmedByBuyer = true
	o.DeliveryConfirmedAt = &now
	o.CompletedAt = &now
	return o, nil
}

func (s *Service) completed(ctx context.Context, o *domain.Order, via string) {
	log.Info().Str("order_id", o.ID.String()).Str("via", via).Msg("order completed")
	events.Emit(ctx, s.Events, events.OrderCompleted, o.ID.String(), map[string]interface{}{
		"via":           via,
		"seller_payout": o.SellerPayout.StringFixed(2),
	})
}

// SendToBuyer emails the live code and link to the buyer. A failed send leaves the code in place.
func (s *Service) SendToBuyer(ctx context.Context, orderID, sellerID uuid.UUID) error {
	db := s.DB.WithContext(ctx)
	o, err := loadOrder(db, orderID)
	if err != nil {
		return err
	}
	if o.SellerID != sellerID {
		return domain.ErrNotSeller
	}
	if !o.Status.Open() {
		return domain.ErrOrderNotPending
	}
	if o.HandoffCode == nil || o.HandoffQRToken == nil || o.HandoffExpiresAt == nil {
		return domain.ErrNoHandoffCode
	}
	if !s.now().Before(*o.HandoffExpiresAt) {
		return domain.ErrCodeExpired
	}
	var buyer domain.User
	if err := db.Select("id", "email").Where("id = ?", o.BuyerID).First(&buyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}
	if s.Mailer == nil {
		return domain.ErrEmailDelivery.Withf("Email delivery is not configured")
	}
	link := DeepLink(s.Origin, o.ID, *o.HandoffQRToken)
	if err := s.Mailer.SendHandoffCode(ctx, emails.HandoffEmail{
		To:           buyer.Email,
		ListingTitle: o.ListingTitle,
		Code:         *o.HandoffCode,
		Link:         link,
		QRImageURL:   QRImageURL(link),
		ExpiresAt:    *o.HandoffExpiresAt,
	}); err != nil {
		log.Warn().Err(err).Str("order_id", orderID.String()).Msg("handoff email failed")
		return domain.ErrEmailDelivery
	}
	log.Info().Str("order_id", orderID.String()).Msg("handoff code sent to buyer")
	return nil
}

// Status returns the handoff read model for either party.
func (s *Service) Status(ctx context.Context, orderID, userID uuid.UUID) (*View, error) {
	o, err := loadOrder(s.DB.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if !o.Party(userID) {
		return nil, domain.ErrNotParticipant
	}
	now := s.now()
	v := &View{
		OrderID:         o.ID,
		Status:          o.Status,
		Paid:            o.Paid(),
		CodeIssued:      o.HandoffIssued(),
		ExpiresAt:       o.HandoffExpiresAt,
		ConfirmedAt:     o.HandoffConfirmedAt,
		AutoReleaseTime: o.AutoReleaseTime,
	}
	if o.HandoffExpiresAt != nil {
		v.Expired = !now.Before(*o.HandoffExpiresAt)
	}
	if v.CodeIssued {
		if rem := s.limit(o) - o.HandoffAttempts; rem > 0 {
			v.AttemptsRemaining = rem
		}
	}
	if userID == o.SellerID && o.HandoffCode != nil && o.HandoffQRToken != nil {
		v.Code = *o.HandoffCode
		v.Token = *o.HandoffQRToken
		v.Link = DeepLink(s.Origin, o.ID, v.Token)
		v.QRImageURL = QRImageURL(v.Link)
	}
	return v, nil
}
