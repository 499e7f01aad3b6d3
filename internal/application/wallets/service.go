package wallets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"unimarket-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var StartingBalance = decimal.NewFromInt(100)

type Service struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Wallet is the demo payment profile shown at checkout.
type Wallet struct {
	Wallet domain.VirtualWallet `json:"wallet"`
	Card   *domain.VirtualCard  `json:"card"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cardToken() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "vc_" + uuid.NewString()
	}
	return "vc_" + hex.EncodeToString(b)
}

// InitializeUserData gives a user a demo card and a funded wallet. Calling it again changes nothing.
func (s *Service) InitializeUserData(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	now := s.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrUserNotFound
		}

		if err := tx.Model(&domain.VirtualCard{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			card := domain.VirtualCard{
				UserID:   userID,
				Brand:    "Visa (Demo)",
				Last4:    "4242",
				ExpMonth: int(now.Month()),
				ExpYear:  now.Year() + 3,
				Token:    cardToken(),
				Status:   domain.CardActive,
			}
			if err := tx.Create(&card).Error; err != nil {
				return err
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&domain.VirtualWallet{UserID: userID, DemoBalance: StartingBalance}).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID.String()).Msg("wallet initialized")
	return s.GetWallet(ctx, userID)
}

func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	db := s.DB.WithContext(ctx)
	var out Wallet
	if err := db.Where("user_id = ?", userID).First(&out.Wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	var card domain.VirtualCard
	err := db.Where("user_id = ?", userID).Order("created_at DESC").First(&card).Error
	switch {
	case err == nil:
		out.Card = &card
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return &out, nil
}

// AdjustCredits adds delta (which may be negative) to a user's credit balance, clamping at zero.
func (s *Service) AdjustCredits(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	delta = domain.Money(delta)
	var balance decimal.Decimal
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("id = ?", userID).Update("credits_balance", gorm.Expr(
			"CASE WHEN credits_balance + ? < 0 THEN 0 ELSE ROUND(credits_balance + ?, 2) END", delta, delta,
		))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		var u domain.User
		if err := tx.Select("id", "credits_balance").Where("id = ?", userID).First(&u).Error; err != nil {
			return err
		}
		balance = u.CreditsBalance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	log.Info().Str("user_id", userID.String()).Str("delta", delta.StringFixed(2)).Msg("credits adjusted")
	return balance, nil
}
