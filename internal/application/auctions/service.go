package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultDurationDays = 7
	maxDurationDays     = 30
	snapshotPrefix      = "auction:snapshot:"
)

type Service struct {
	DB       *gorm.DB
	Rdb      *redis.Client // optional; serves polled auction reads
	CacheTTL time.Duration
	Events   events.Publisher
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateListingInput is the seller-supplied listing plus auction length.
type CreateListingInput struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Photos       []string         `json:"photos"`
	Category     string           `json:"category"`
	Condition    string           `json:"condition"`
	RetailPrice  *decimal.Decimal `json:"retail_price"`
	StartPrice   decimal.Decimal  `json:"start_price"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price"`
	DurationDays int              `json:"duration_days"`
}

func (in *CreateListingInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Condition = strings.TrimSpace(in.Condition)
	if in.Title == "" || in.Category == "" || in.Condition == "" {
		return domain.Validation("Title, category and condition are required")
	}
	if !in.StartPrice.IsPositive() {
		return domain.Validation("Start price must be greater than zero")
	}
	if in.BuyNowPrice != nil && !in.BuyNowPrice.IsPositive() {
		return domain.Validation("Buy now price must be greater than zero")
	}
	if in.RetailPrice != nil && in.RetailPrice.IsNegative() {
		return domain.Validation("Retail price cannot be negative")
	}
	if in.DurationDays == 0 {
		in.DurationDays = defaultDurationDays
	}
	if in.DurationDays < 1 || in.DurationDays > maxDurationDays {
		return domain.Validation(fmt.Sprintf("Auction duration must be between 1 and %d days", maxDurationDays))
	}
	return nil
}

// ListingWithAuction is returned by CreateListing and listing reads.
type ListingWithAuction struct {
	Listing domain.Listing  `json:"listing"`
	Auction *domain.Auction `json:"auction"`
}

// CreateListing creates the listing and its live auction in one transaction.
func (s *Service) CreateListing(ctx context.Context, sellerID uuid.UUID, in CreateListingInput) (*ListingWithAuction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	photos, _ := json.Marshal(in.Photos)
	if in.Photos == nil {
		photos = []byte("[]")
	}

	var out ListingWithAuction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seller domain.User
		if err := tx.Where("id = ?", sellerID).First(&seller).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		if !seller.Verified {
			return domain.ErrUnverified.Withf("Please verify your email before listing items")
		}

		listing := domain.Listing{
			Title:       in.Title,
			Description: in.Description,
			Photos:      datatypes.JSON(photos),
			Category:    in.Category,
			Condition:   in.Condition,
			SellerID:    sellerID,
			StartPrice:  domain.Money(in.StartPrice),
			Status:      domain.ListingDraft,
		}
		if in.RetailPrice != nil {
			listing.RetailPrice = decimal.NewNullDecimal(domain.Money(*in.RetailPrice))
		}
		if in.BuyNowPrice != nil {
			listing.BuyNowPrice = decimal.NewNullDecimal(domain.Money(*in.BuyNowPrice))
		}
		if err := tx.Create(&listing).Error; err != nil {
			return err
		}

		auction := domain.Auction{
			ListingID:    listing.ID,
			StartPrice:   listing.StartPrice,
			CurrentPrice: listing.StartPrice,
			EndTime:      now.AddDate(0, 0, in.DurationDays),
			Status:       domain.AuctionLive,
		}
		if err := tx.Create(&auction).Error; err != nil {
			return err
		}

		if err := tx.Model(&listing).Updates(map[string]interface{}{
			"status":            domain.ListingLive,
			"active_auction_id": auction.ID,
		}).Error; err != nil {
			return err
		}
		listing.Status = domain.ListingLive
		listing.ActiveAuctionID = &auction.ID

		out = ListingWithAuction{Listing: listing, Auction: &auction}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("listing_id", out.Listing.ID.String()).Str("auction_id", out.Auction.ID.String()).Msg("listing live")
	return &out, nil
}

// PlaceBid accepts a bid strictly above the current price before the auction ends.
// The bid row, the auction update and the price point commit together.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, bidderName string, amount decimal.Decimal) (*domain.Bid, error) {
	amount = domain.Money(amount)
	if !amount.IsPositive() {
		return nil, domain.Validation("Bid amount must be greater than zero")
	}
	now := s.now()

	var bid *domain.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var auction domain.Auction
		if err := tx.Where("id = ?", auctionID).First(&auction).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAuctionNotFound
			}
			return err
		}
		if !auction.Open(now) {
			return domain.ErrAuctionEnded
		}
		var listing domain.Listing
		if err := tx.Select("id", "seller_id", "status").Where("id = ?", auction.ListingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingLive {
			return domain.ErrAuctionEnded
		}
		if listing.SellerID == bidderID {
			return domain.ErrSelfBid
		}
		if amount.LessThanOrEqual(auction.CurrentPrice) {
			return domain.BidTooLow(auction.CurrentPrice.StringFixed(2))
		}
		if bidderName == "" {
			var u domain.User
			if err := tx.Select("id", "email", "full_name").Where("id = ?", bidderID).First(&u).Error; err == nil {
				bidderName = u.DisplayName()
			}
		}

		var err error
		bid, err = acceptBid(tx, &auction, bidderID, bidderName, amount, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, auctionID)
	log.Info().Str("auction_id", auctionID.String()).Str("amount", amount.StringFixed(2)).Msg("bid accepted")
	events.Emit(ctx, s.Events, events.BidPlaced, auctionID.String(), map[string]interface{}{
		"bid_id":    bid.ID.String(),
		"bidder_id": bidderID.String(),
		"amount":    amount.StringFixed(2),
	})
	return bid, nil
}

// acceptBid applies a validated bid against the auction as read. bid_count is the version:
// if another bid committed since the read, nothing is written and ErrConcurrentBid is returned.
func acceptBid(tx *gorm.DB, auction *domain.Auction, bidderID uuid.UUID, bidderName string, amount decimal.Decimal, now time.Time) (*domain.Bid, error) {
	res := tx.Model(&domain.Auction{}).
		Where("id = ? AND bid_count = ? AND status = ?", auction.ID, auction.BidCount, domain.AuctionLive).
		Updates(map[string]interface{}{
			"current_price": amount,
			"bid_count":     gorm.Expr("bid_count + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConcurrentBid
	}

	bid := &domain.Bid{
		AuctionID:  auction.ID,
		BidderID:   bidderID,
		BidderName: bidderName,
		Amount:     amount,
		CreatedAt:  now,
	}
	if err := tx.Create(bid).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(&domain.PricePoint{AuctionID: auction.ID, Price: amount, At: now}).Error; err != nil {
		return nil, err
	}
	auction.CurrentPrice = amount
	auction.BidCount++
	return bid, nil
}

// GetAuction returns the auction, from the snapshot cache when one is configured.
// Polling clients tolerate staleness up to CacheTTL; bids invalidate the snapshot.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*domain.Auction, error) {
	if s.Rdb != nil {
		if b, err := s.Rdb.Get(ctx, snapshotPrefix+auctionID.String()).Bytes(); err == nil {
			var cached domain.Auction
			if json.Unmarshal(b, &cached) == nil {
				return &cached, nil
			}
		}
	}

	var auction domain.Auction
	if err := s.DB.WithContext(ctx).Where("id = ?", auctionID).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}

	if s.Rdb != nil && s.CacheTTL > 0 {
		if b, err := json.Marshal(&auction); err == nil {
			if err := s.Rdb.Set(ctx, snapshotPrefix+auctionID.String(), b, s.CacheTTL).Err(); err != nil {
				log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("auction snapshot write failed")
			}
		}
	}
	return &auction, nil
}

func (s *Service) invalidate(ctx context.Context, auctionID uuid.UUID) {
	if s.Rdb == nil {
		return
	}
	if err := s.Rdb.Del(ctx, snapshotPrefix+auctionID.String()).Err(); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID.String()).Msg("auction snapshot invalidate failed")
	}
}

// ListBids returns accepted bids, highest first; equal amounts fall back to newest first.
func (s *Service) ListBids(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("auction_id = ?", auctionID).Order("amount DESC, created_at DESC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// PriceHistory returns the charting series, oldest first.
func (s *Service) PriceHistory(ctx context.Context, auctionID uuid.UUID) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	if err := s.DB.WithContext(ctx).Where("auction_id = ?", auctionID).Order("at ASC").Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Service) GetListing(ctx context.Context, listingID uuid.UUID) (*ListingWithAuction, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	out := &ListingWithAuction{Listing: listing}
	if listing.ActiveAuctionID != nil {
		a, err := s.GetAuction(ctx, *listing.ActiveAuctionID)
		if err != nil && !errors.Is(err, domain.ErrAuctionNotFound) {
			return nil, err
		}
		out.Auction = a
	}
	return out, nil
}

func (s *Service) ListLiveListings(ctx context.Context) ([]domain.Listing, error) {
	var listings []domain.Listing
	if err := s.DB.WithContext(ctx).Where("status = ?", domain.ListingLive).Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (s *Service) ListSellerListings(ctx context.Context, sellerID uuid.UUID) ([]domain.Listing, error) {
	var listings []domain.Listing
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}
