package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"unimarket-backend/internal/application/payments"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultAutoReleaseWindow = 72 * time.Hour

type Service struct {
	DB                *gorm.DB
	Gateway           payments.Gateway // card captures; wallet captures never leave the database
	Events            events.Publisher
	AutoReleaseWindow time.Duration
	Now               func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) releaseWindow() time.Duration {
	if s.AutoReleaseWindow > 0 {
		return s.AutoReleaseWindow
	}
	return DefaultAutoReleaseWindow
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

// CreateOrder opens a Pending order for the buyer. With buyNow the listing's buy-now price is
// used and the auction is left untouched; otherwise the caller must be the high bidder of an ended auction.
func (s *Service) CreateOrder(ctx context.Context, buyerID, listingID uuid.UUID, buyNow bool) (*domain.Order, error) {
	now := s.now()
	var order domain.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingLive {
			return domain.ErrListingUnavailable
		}
		if listing.SellerID == buyerID {
			return domain.ErrSelfPurchase
		}

		var buyer domain.User
		if err := tx.Where("id = ?", buyerID).First(&buyer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}

		var auction *domain.Auction
		if listing.ActiveAuctionID != nil {
			var a domain.Auction
			if err := tx.Where("id = ?", *listing.ActiveAuctionID).First(&a).Error; err == nil {
				auction = &a
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		startPrice := listing.StartPrice
		if auction != nil {
			startPrice = auction.StartPrice
		}

		var finalPrice decimal.Decimal
		var auctionID *uuid.UUID
		if buyNow {
			if !listing.BuyNowPrice.Valid {
				return domain.Validation("This listing has no buy now price")
			}
			finalPrice = listing.BuyNowPrice.Decimal
		} else {
			if auction == nil {
				return domain.ErrAuctionNotFound
			}
			if auction.Open(now) {
				return domain.ErrNotHighBidder.Withf("Auction is still running")
			}
			var top domain.Bid
			if err := tx.Where("auction_id = ?", auction.ID).Order("amount DESC, created_at DESC").First(&top).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrNotHighBidder.Withf("Auction ended without bids")
				}
				return err
			}
			if top.BidderID != buyerID || !top.Amount.Equal(auction.CurrentPrice) {
				return domain.ErrNotHighBidder
			}
			finalPrice = auction.CurrentPrice
			auctionID = &auction.ID
		}

		fees := ComputeFees(finalPrice, startPrice, buyer.CreditsBalance)
		order = domain.Order{
			ListingID:       listing.ID,
			ListingTitle:    listing.Title,
			AuctionID:       auctionID,
			BuyerID:         buyerID,
			SellerID:        listing.SellerID,
			StartPrice:      domain.Money(startPrice),
			FinalPrice:      domain.Money(finalPrice),
			AppFeeRaw:       fees.AppFeeRaw,
			CreditsApplied:  fees.CreditsApplied,
			AppFeeFinal:     fees.AppFeeFinal,
			SellerPayout:    fees.SellerPayout,
			CashbackCredits: decimal.Zero,
			Status:          domain.OrderPending,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewOrderEvent(order.ID, domain.EventOrderCreated, &buyerID, map[string]interface{}{
			"final_price": order.FinalPrice.StringFixed(2),
			"buy_now":     buyNow,
		})).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", order.ID.String()).Str("listing_id", listingID.String()).Bool("buy_now", buyNow).Msg("order created")
	events.Emit(ctx, s.Events, events.OrderCreated, order.ID.String(), map[string]interface{}{
		"listing_id":  listingID.String(),
		"buyer_id":    buyerID.String(),
		"final_price": order.FinalPrice.StringFixed(2),
	})
	return &order, nil
}

// checkCapturable enforces the capture preconditions against a freshly read order and buyer.
func checkCapturable(o *domain.Order, buyer *domain.User, buyerID uuid.UUID) error {
	if o.BuyerID != buyerID {
		return domain.ErrNotBuyer
	}
	if o.Paid() {
		return domain.ErrAlreadyPaid
	}
	if o.Status != domain.OrderPending {
		return domain.ErrOrderNotPending
	}
	if !buyer.Verified {
		return domain.ErrUnverified.Withf("Please verify your email before completing purchases. Check your Profile for the verification link.")
	}
	return nil
}

// CapturePayment settles checkout. Wallet debit, order, listing, auction and buyer credits change
// in one transaction. A card capture happens at the gateway first; if the transaction then fails the
// payment needs manual reconciliation and ErrReconciliation is returned.
func (s *Service) CapturePayment(ctx context.Context, orderID, buyerID uuid.UUID, method string) (*domain.Order, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method != domain.PaymentMethodWallet && method != domain.PaymentMethodCard {
		return nil, domain.Validation("Payment method must be wallet or card")
	}
	now := s.now()

	var intentID string
	if method == domain.PaymentMethodWallet {
		intentID = payments.DemoIntentID(now)
	} else {
		if s.Gateway == nil {
			return nil, domain.ErrPaymentDeclined.Withf("Card payments are not available")
		}
		o, err := loadOrder(s.DB.WithContext(ctx), orderID)
		if err != nil {
			return nil, err
		}
		var buyer domain.User
		if err := s.DB.WithContext(ctx).Where("id = ?", buyerID).First(&buyer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.ErrUserNotFound
			}
			return nil, err
		}
		if err := checkCapturable(o, &buyer, buyerID); err != nil {
			return nil, err
		}
		res, err := s.Gateway.Capture(ctx, payments.CaptureRequest{
			OrderID:  o.ID,
			BuyerID:  buyerID,
			Amount:   o.FinalPrice,
			Currency: "gbp",
		})
		if err != nil {
			log.Warn().Err(err).Str("order_id", orderID.String()).Msg("card capture declined")
			return nil, domain.ErrPaymentDeclined
		}
		intentID = res.IntentID
	}

	var order *domain.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.settle(tx, orderID, buyerID, method, intentID, now)
		return err
	})
	if err != nil {
		if method == domain.PaymentMethodCard {
			log.Error().Err(err).Bool("reconcile", true).Str("order_id", orderID.String()).
				Str("payment_intent_id", intentID).Msg("card captured but order settlement failed")
			return nil, fmt.Errorf("%w: %v", domain.ErrReconciliation, err)
		}
		return nil, err
	}

	log.Info().Str("order_id", orderID.String()).Str("method", method).Msg("payment captured")
	events.Emit(ctx, s.Events, events.OrderPaid, orderID.String(), map[string]interface{}{
		"payment_intent_id": intentID,
		"method":            method,
		"final_price":       order.FinalPrice.StringFixed(2),
		"auto_release_time": order.AutoReleaseTime,
	})
	return order, nil
}

// debitWallet takes amount from the wallet only while the stored balance covers it.
func debitWallet(tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error {
	res := tx.Model(&domain.VirtualWallet{}).
		Where("user_id = ? AND demo_balance >= ?", userID, amount).
		Update("demo_balance", gorm.Expr("ROUND(demo_balance - ?, 2)", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// applyCredits spends the applied credits (never below zero) and adds the cashback
// in a single statement so concurrent adjustments are not overwritten.
func applyCredits(tx *gorm.DB, userID uuid.UUID, applied, cashback decimal.Decimal) error {
	res := tx.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("credits_balance", gorm.Expr(
			"ROUND(CASE WHEN credits_balance < ? THEN 0 ELSE credits_balance - ? END + ?, 2)",
			applied, applied, cashback,
		))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// endAuction closes the auction behind a paid order. Buy-now orders carry no
// auction id, so the listing's active auction is ended instead.
func endAuction(tx *gorm.DB, o *domain.Order, buyerID uuid.UUID) error {
	auctionID := o.AuctionID
	if auctionID == nil {
		var listing domain.Listing
		if err := tx.Select("id", "active_auction_id").Where("id = ?", o.ListingID).First(&listing).Error; err != nil {
			return err
		}
		auctionID = listing.ActiveAuctionID
	}
	if auctionID == nil {
		return nil
	}
	return tx.Model(&domain.Auction{}).Where("id = ?", *auctionID).Updates(map[string]interface{}{
		"status":    domain.AuctionEnded,
		"winner_id": buyerID,
	}).Error
}

func (s *Service) settle(tx *gorm.DB, orderID, buyerID uuid.UUID, method, intentID string, now time.Time) (*domain.Order, error) {
	o, err := loadOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	var buyer domain.User
	if err := tx.Where("id = ?", buyerID).First(&buyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if err := checkCapturable(o, &buyer, buyerID); err != nil {
		return nil, err
	}

	if method == domain.PaymentMethodWallet {
		var card domain.VirtualCard
		if err := tx.Where("user_id = ? AND status = ?", buyerID, domain.CardActive).First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.ErrCardInactive
			}
			return nil, err
		}
		if err := debitWallet(tx, buyerID, o.FinalPrice); err != nil {
			return nil, err
		}
	}

	listingRes := tx.Model(&domain.Listing{}).
		Where("id = ? AND status = ?", o.ListingID, domain.ListingLive).
		Update("status", domain.ListingSold)
	if listingRes.Error != nil {
		return nil, listingRes.Error
	}
	if listingRes.RowsAffected == 0 {
		return nil, domain.ErrListingUnavailable
	}

	if err := endAuction(tx, o, buyerID); err != nil {
		return nil, err
	}

	cashback := Cashback(o.FinalPrice)
	if err := applyCredits(tx, buyerID, o.CreditsApplied, cashback); err != nil {
		return nil, err
	}

	release := now.Add(s.releaseWindow())
	res := tx.Model(&domain.Order{}).
		Where("id = ? AND status = ? AND paid_at IS NULL", o.ID, domain.OrderPending).
		Updates(map[string]interface{}{
			"stripe_payment_intent_id": intentID,
			"payment_method":           method,
			"paid_at":                  now,
			"auto_release_time":        release,
			"cashback_credits":         cashback,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrConcurrentUpdate
	}
	if err := tx.Create(domain.NewOrderEvent(o.ID, domain.EventOrderPaid, &buyerID, map[string]interface{}{
		"method":            method,
		"payment_intent_id": intentID,
		"cashback":          cashback.StringFixed(2),
	})).Error; err != nil {
		return nil, err
	}

	o.StripePaymentIntentID = &intentID
	o.PaymentMethod = method
	o.PaidAt = &now
	o.AutoReleaseTime = &release
	o.CashbackCredits = cashback
	return o, nil
}

// OpenDispute freezes an open order. Only the buyer may dispute, and only before completion.
func (s *Service) OpenDispute(ctx context.Context, orderID, buyerID uuid.UUID, reason string, evidence []string) (*domain.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validation("Please describe the issue")
	}
	if evidence == nil {
		evidence = []string{}
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return nil, err
	}

	var dispute domain.Dispute
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID {
			return domain.ErrNotBuyer.Withf("Only the buyer can open a dispute")
		}
		if !o.Status.Open() {
			return domain.ErrOrderNotPending
		}
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ?", o.ID, o.Status).
			Update("status", domain.OrderDisputed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentUpdate
		}
		dispute = domain.Dispute{
			OrderID:    o.ID,
			RaisedByID: buyerID,
			Reason:     reason,
			Evidence:   datatypes.JSON(evidenceJSON),
			Status:     domain.DisputeOpen,
		}
		if err := tx.Create(&dispute).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewOrderEvent(o.ID, domain.EventOrderDisputed, &buyerID, map[string]interface{}{
			"dispute_id": dispute.ID.String(),
			"from":       o.Status,
		})).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID.String()).Str("dispute_id", dispute.ID.String()).Msg("order disputed")
	events.Emit(ctx, s.Events, events.OrderDisputed, orderID.String(), map[string]interface{}{
		"dispute_id": dispute.ID.String(),
	})
	return &dispute, nil
}

// ReleaseDue completes every paid, undisputed order whose auto-release deadline has passed.
// Each order is released by its own conditional update so a concurrent dispute or handoff wins cleanly.
func (s *Service) ReleaseDue(ctx context.Context, now time.Time) (int, error) {
	var due []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&domain.Order{}).
		Where("status IN ? AND paid_at IS NOT NULL AND auto_release_time <= ?",
			[]domain.OrderStatus{domain.OrderPending, domain.OrderReady}, now).
		Pluck("id", &due).Error; err != nil {
		return 0, err
	}

	released := 0
	for _, id := range due {
		ok, err := s.release(ctx, id, now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
			log.Info().Str("order_id", id.String()).Msg("order auto-released")
			events.Emit(ctx, s.Events, events.OrderAutoReleased, id.String(), nil)
		}
	}
	return released, nil
}

func (s *Service) release(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	released := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status IN ? AND paid_at IS NOT NULL AND auto_release_time <= ?",
				orderID, []domain.OrderStatus{domain.OrderPending, domain.OrderReady}, now).
			Updates(map[string]interface{}{
				"status":           domain.OrderCompleted,
				"auto_released":    true,
				"completed_at":     now,
				"handoff_code":     nil,
				"handoff_qr_token": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		released = true
		return tx.Create(domain.NewOrderEvent(orderID, domain.EventOrderAutoReleased, nil, nil)).Error
	})
	return released, err
}

// GetOrder returns the order to its buyer or seller.
func (s *Service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*domain.Order, error) {
	o, err := loadOrder(s.DB.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if !o.Party(userID) {
		return nil, domain.ErrNotParticipant
	}
	return o, nil
}

func (s *Service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID) ([]domain.Order, error) {
	var orders []domain.Order
	if err := s.DB.WithContext(ctx).Where("buyer_id = ?", buyerID).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) ListSellerOrders(ctx context.Context, sellerID uuid.UUID) ([]domain.Order, error) {
	var orders []domain.Order
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOpenOrdersForListing lets the seller find the order awaiting handoff for a listing.
func (s *Service) ListOpenOrdersForListing(ctx context.Context, listingID, sellerID uuid.UUID) ([]domain.Order, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Select("id", "seller_id").Where("id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, domain.ErrNotSeller
	}
	var orders []domain.Order
	if err := s.DB.WithContext(ctx).
		Where("listing_id = ? AND status IN ?", listingID, []domain.OrderStatus{domain.OrderPending, domain.OrderReady}).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// History returns the audit trail of an order to its buyer or seller.
func (s *Service) History(ctx context.Context, orderID, userID uuid.UUID) ([]domain.OrderEvent, error) {
	if _, err := s.GetOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	var out []domain.OrderEvent
	if err := s.DB.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// OverdueReleases counts paid orders past their auto-release deadline that the worker has not completed yet.
func (s *Service) OverdueReleases(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&domain.Order{}).
		Where("status IN ? AND paid_at IS NOT NULL AND auto_release_time <= ?",
			[]domain.OrderStatus{domain.OrderPending, domain.OrderReady}, now).
		Count(&n).Error
	return n, err
}
