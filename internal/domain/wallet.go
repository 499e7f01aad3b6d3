package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CardActive   = "Active"
	CardInactive = "Inactive"
)

// VirtualWallet holds the demo balance used by simulated checkout.
type VirtualWallet struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	DemoBalance decimal.Decimal `gorm:"column:demo_balance;type:decimal(12,2);not null;default:0" json:"demo_balance"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (VirtualWallet) TableName() string {
	return "VirtualWallets"
}

func (w *VirtualWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type VirtualCard struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Brand     string    `gorm:"column:brand;not null" json:"brand"`
	Last4     string    `gorm:"column:last4;type:varchar(4);not null" json:"last4"`
	ExpMonth  int       `gorm:"column:exp_month;not null" json:"exp_month"`
	ExpYear   int       `gorm:"column:exp_year;not null" json:"exp_year"`
	Token     string    `gorm:"column:token;not null" json:"-"`
	Status    string    `gorm:"column:status;type:varchar(20);not null;default:'Active'" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (VirtualCard) TableName() string {
	return "VirtualCards"
}

func (c *VirtualCard) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
