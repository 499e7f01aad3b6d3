package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListingStatus string

const (
	ListingDraft ListingStatus = "Draft"
	ListingLive  ListingStatus = "Live"
	ListingSold  ListingStatus = "Sold"
)

type Listing struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title           string              `gorm:"column:title;not null" json:"title"`
	Description     string              `gorm:"column:description" json:"description"`
	Photos          datatypes.JSON      `gorm:"column:photos;type:json" json:"photos"`
	Category        string              `gorm:"column:category;not null" json:"category"`
	Condition       string              `gorm:"column:condition;not null" json:"condition"`
	SellerID        uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	RetailPrice     decimal.NullDecimal `gorm:"column:retail_price;type:decimal(12,2)" json:"retail_price"`
	StartPrice      decimal.Decimal     `gorm:"column:start_price;type:decimal(12,2);not null" json:"start_price"`
	BuyNowPrice     decimal.NullDecimal `gorm:"column:buy_now_price;type:decimal(12,2)" json:"buy_now_price"`
	Status          ListingStatus       `gorm:"column:status;type:varchar(20);not null;default:'Draft'" json:"status"`
	ActiveAuctionID *uuid.UUID          `gorm:"column:active_auction_id;type:uuid" json:"active_auction_id"`
	CreatedAt       time.Time           `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt       time.Time           `gorm:"column:updated_at" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if len(l.Photos) == 0 {
		l.Photos = datatypes.JSON("[]")
	}
	return nil
}
