package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AuctionStatus string

const (
	AuctionLive  AuctionStatus = "Live"
	AuctionEnded AuctionStatus = "Ended"
)

// Auction invariants: CurrentPrice never decreases and BidCount equals the number of Bid rows.
// BidCount doubles as the optimistic version for bid acceptance.
type Auction struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID    uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	StartPrice   decimal.Decimal `gorm:"column:start_price;type:decimal(12,2);not null" json:"start_price"`
	CurrentPrice decimal.Decimal `gorm:"column:current_price;type:decimal(12,2);not null" json:"current_price"`
	EndTime      time.Time       `gorm:"column:end_time;not null" json:"end_time"`
	Status       AuctionStatus   `gorm:"column:status;type:varchar(20);not null;default:'Live'" json:"status"`
	BidCount     int             `gorm:"column:bid_count;not null;default:0" json:"bid_count"`
	WinnerID     *uuid.UUID      `gorm:"column:winner_id;type:uuid" json:"winner_id"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (Auction) TableName() string {
	return "Auctions"
}

func (a *Auction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Open reports whether the auction still accepts bids at now.
func (a *Auction) Open(now time.Time) bool {
	return a.Status == AuctionLive && now.Before(a.EndTime)
}

// Bid is append-only.
type Bid struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AuctionID  uuid.UUID       `gorm:"column:auction_id;type:uuid;not null;index" json:"auction_id"`
	BidderID   uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null" json:"bidder_id"`
	BidderName string          `gorm:"column:bidder_name" json:"bidder_name"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"createdAt"`
}

func (Bid) TableName() string {
	return "Bids"
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// PricePoint is one charting sample; never read by decision logic.
type PricePoint struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AuctionID uuid.UUID       `gorm:"column:auction_id;type:uuid;not null;index" json:"auction_id"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	At        time.Time       `gorm:"column:at;not null" json:"at"`
}

func (PricePoint) TableName() string {
	return "PricePoints"
}

func (p *PricePoint) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
