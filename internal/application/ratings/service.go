package ratings

import (
	"context"
	"errors"
	"strings"

	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const maxCommentLen = 1000

type Service struct {
	DB     *gorm.DB
	Events events.Publisher
}

// SubmitRating records one rating per rater per order and folds it into the ratee's aggregate.
func (s *Service) SubmitRating(ctx context.Context, orderID, raterID uuid.UUID, stars int, comment string) (*domain.Rating, error) {
	if stars < 1 || stars > 5 {
		return nil, domain.Validation("Rating must be between 1 and 5 stars")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLen {
		return nil, domain.Validation("Comment is too long")
	}

	var rating domain.Rating
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o domain.Order
		if err := tx.Where("id = ?", orderID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		if !o.Party(raterID) {
			return domain.ErrNotParticipant
		}
		if o.Status != domain.OrderCompleted {
			return domain.ErrOrderNotCompleted
		}

		rateeID, flag := o.SellerID, "buyer_rated"
		if raterID == o.SellerID {
			rateeID, flag = o.BuyerID, "seller_rated"
		}

		var existing int64
		if err := tx.Model(&domain.Rating{}).Where("order_id = ? AND rater_id = ?", orderID, raterID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return domain.ErrAlreadyRated
		}

		rating = domain.Rating{OrderID: orderID, RaterID: raterID, RateeID: rateeID, Stars: stars, Comment: comment}
		if err := tx.Create(&rating).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
				return domain.ErrAlreadyRated
			}
			return err
		}

		var ratee domain.User
		if err := tx.Select("id", "rating_sum", "rating_count").Where("id = ?", rateeID).First(&ratee).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		sum, count := ratee.RatingSum+stars, ratee.RatingCount+1
		res := tx.Model(&domain.User{}).
			Where("id = ? AND rating_count = ?", rateeID, ratee.RatingCount).
			Updates(map[string]interface{}{
				"rating_sum":     sum,
				"rating_count":   count,
				"average_rating": float64(sum) / float64(count),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentUpdate
		}
		if err := tx.Model(&domain.Order{}).Where("id = ?", orderID).Update(flag, true).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewOrderEvent(orderID, domain.EventOrderRated, &raterID, map[string]interface{}{
			"stars":    stars,
			"ratee_id": rateeID.String(),
		})).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID.String()).Int("stars", stars).Msg("rating submitted")
	events.Emit(ctx, s.Events, events.RatingSubmitted, orderID.String(), map[string]interface{}{
		"rater_id": raterID.String(),
		"ratee_id": rating.RateeID.String(),
		"stars":    stars,
	})
	return &rating, nil
}

// isUniqueViolation covers drivers that do not translate errors into gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// ListForUser returns the ratings a user has received, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Rating, error) {
	var out []domain.Rating
	if err := s.DB.WithContext(ctx).Where("ratee_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MyRating returns the caller's rating for an order, or nil if they have not rated it.
func (s *Service) MyRating(ctx context.Context, orderID, raterID uuid.UUID) (*domain.Rating, error) {
	var r domain.Rating
	err := s.DB.WithContext(ctx).Where("order_id = ? AND rater_id = ?", orderID, raterID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
