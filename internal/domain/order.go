package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderReady     OrderStatus = "Ready"
	OrderCompleted OrderStatus = "Completed"
	OrderDisputed  OrderStatus = "Disputed"
)

// Open reports whether the order still accepts handoff or dispute actions.
func (s OrderStatus) Open() bool {
	return s == OrderPending || s == OrderReady
}

const (
	PaymentMethodWallet = "wallet"
	PaymentMethodCard   = "card"
)

// Order is the escrow record. Rows are never deleted.
type Order struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID                uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	ListingTitle             string          `gorm:"column:listing_title" json:"listing_title"`
	AuctionID                *uuid.UUID      `gorm:"column:auction_id;type:uuid" json:"auction_id"`
	BuyerID                  uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	SellerID                 uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	StartPrice               decimal.Decimal `gorm:"column:start_price;type:decimal(12,2);not null" json:"start_price"`
	FinalPrice               decimal.Decimal `gorm:"column:final_price;type:decimal(12,2);not null" json:"final_price"`
	AppFeeRaw                decimal.Decimal `gorm:"column:app_fee_raw;type:decimal(12,2);not null" json:"app_fee_raw"`
	CreditsApplied           decimal.Decimal `gorm:"column:credits_applied;type:decimal(12,2);not null" json:"credits_applied"`
	AppFeeFinal              decimal.Decimal `gorm:"column:app_fee_final;type:decimal(12,2);not null" json:"app_fee_final"`
	SellerPayout             decimal.Decimal `gorm:"column:seller_payout;type:decimal(12,2);not null" json:"seller_payout"`
	CashbackCredits          decimal.Decimal `gorm:"column:cashback_credits;type:decimal(12,2);not null;default:0" json:"cashback_credits"`
	Status                   OrderStatus     `gorm:"column:status;type:varchar(20);not null;default:'Pending';index" json:"status"`
	PaymentMethod            string          `gorm:"column:payment_method;type:varchar(20)" json:"payment_method"`
	StripePaymentIntentID    *string         `gorm:"column:stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	PaidAt                   *time.Time      `gorm:"column:paid_at" json:"paid_at"`
	AutoReleaseTime          *time.Time      `gorm:"column:auto_release_time;index" json:"auto_release_time"`
	AutoReleased             bool            `gorm:"column:auto_released;not null;default:false" json:"auto_released"`
	HandoffCode              *string         `gorm:"column:handoff_code" json:"-"`
	HandoffQRToken           *string         `gorm:"column:handoff_qr_token" json:"-"`
	HandoffExpiresAt         *time.Time      `gorm:"column:handoff_expires_at" json:"handoff_expires_at"`
	HandoffAttempts          int             `gorm:"column:handoff_attempts;not null;default:0" json:"handoff_attempts"`
	HandoffMaxAttempts       int             `gorm:"column:handoff_max_attempts;not null;default:0" json:"handoff_max_attempts"`
	HandoffConfirmedBy       *uuid.UUID      `gorm:"column:handoff_confirmed_by;type:uuid" json:"handoff_confirmed_by"`
	HandoffConfirmedAt       *time.Time      `gorm:"column:handoff_confirmed_at" json:"handoff_confirmed_at"`
	DeliveryConfirmedByBuyer bool            `gorm:"column:delivery_confirmed_by_buyer;not null;default:false" json:"delivery_confirmed_by_buyer"`
	DeliveryConfirmedAt      *time.Time      `gorm:"column:delivery_confirmed_at" json:"delivery_confirmed_at"`
	CompletedAt              *time.Time      `gorm:"column:completed_at" json:"completed_at"`
	BuyerRated               bool            `gorm:"column:buyer_rated;not null;default:false" json:"buyer_rated"`
	SellerRated              bool            `gorm:"column:seller_rated;not null;default:false" json:"seller_rated"`
	CreatedAt                time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt                time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Order) TableName() string {
	return "Orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Paid reports whether payment has been captured for the order.
func (o *Order) Paid() bool {
	return o.PaidAt != nil
}

// HandoffIssued reports whether a code was ever generated and not yet consumed.
func (o *Order) HandoffIssued() bool {
	return o.HandoffCode != nil || o.HandoffQRToken != nil
}

// Party reports whether the user is the buyer or the seller of the order.
func (o *Order) Party(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}
