package ratings

import (
	"context"
	"testing"

	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/database"
	"unimarket-backend/internal/infrastructure/events"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRatingTest(t *testing.T, status domain.OrderStatus) (*Service, *gorm.DB, domain.Order) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	seller := domain.User{Email: "sam@uni.ac.uk", FullName: "Sam", PasswordHash: "x", Verified: true}
	buyer := domain.User{Email: "bea@uni.ac.uk", FullName: "Bea", PasswordHash: "x", Verified: true}
	require.NoError(t, db.Create(&seller).Error)
	require.NoError(t, db.Create(&buyer).Error)
	o := domain.Order{ListingID: uuid.New(), BuyerID: buyer.ID, SellerID: seller.ID, Status: status}
	require.NoError(t, db.Create(&o).Error)
	return &Service{DB: db, Events: &events.Recorder{}}, db, o
}

func user(t *testing.T, db *gorm.DB, id uuid.UUID) domain.User {
	var u domain.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u
}

func TestSubmitRating_BothDirections(t *testing.T) {
	svc, db, o := setupRatingTest(t, domain.OrderCompleted)
	ctx := context.Background()

	r, err := svc.SubmitRating(ctx, o.ID, o.BuyerID, 5, " Great seller ")
	require.NoError(t, err)
	assert.Equal(t, o.SellerID, r.RateeID)
	assert.Equal(t, "Great seller", r.Comment)

	_, err = svc.SubmitRating(ctx, o.ID, o.SellerID, 4, "")
	require.NoError(t, err)

	seller := user(t, db, o.SellerID)
	assert.Equal(t, 1, seller.RatingCount)
	assert.Equal(t, 5, seller.RatingSum)
	assert.InDelta(t, 5.0, seller.AverageRating, 1e-9)
	buyer := user(t, db, o.BuyerID)
	assert.Equal(t, 4, buyer.RatingSum)

	var stored domain.Order
	require.NoError(t, db.First(&stored, "id = ?", o.ID).Error)
	assert.True(t, stored.BuyerRated)
	assert.True(t, stored.SellerRated)
	assert.Equal(t, []string{events.RatingSubmitted, events.RatingSubmitted}, svc.Events.(*events.Recorder).Types())
}

func TestSubmitRating_AverageAcrossOrders(t *testing.T) {
	svc, db, o := setupRatingTest(t, domain.OrderCompleted)
	ctx := context.Background()
	other := domain.User{Email: "oli@uni.ac.uk", FullName: "Oli", PasswordHash: "x"}
	require.NoError(t, db.Create(&other).Error)
	o2 := domain.Order{ListingID: uuid.New(), BuyerID: other.ID, SellerID: o.SellerID, Status: domain.OrderCompleted}
	require.NoError(t, db.Create(&o2).Error)

	_, err := svc.SubmitRating(ctx, o.ID, o.BuyerID, 5, "")
	require.NoError(t, err)
	_, err = svc.SubmitRating(ctx, o2.ID, other.ID, 2, "")
	require.NoError(t, err)

	seller := user(t, db, o.SellerID)
	assert.Equal(t, 2, seller.RatingCount)
	assert.Equal(t, 7, seller.RatingSum)
	assert.InDelta(t, 3.5, seller.AverageRating, 1e-9)

	list, err := svc.ListForUser(ctx, o.SellerID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSubmitRating_SecondRatingRejected(t *testing.T) {
	svc, db, o := setupRatingTest(t, domain.OrderCompleted)
	ctx := context.Background()

	_, err := svc.SubmitRating(ctx, o.ID, o.BuyerID, 4, "")
	require.NoError(t, err)
	_, err = svc.SubmitRating(ctx, o.ID, o.BuyerID, 1, "changed my mind")
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)

	seller := user(t, db, o.SellerID)
	assert.Equal(t, 1, seller.RatingCount)
	assert.Equal(t, 4, seller.RatingSum)
}

func TestSubmitRating_UniqueIndexBacksTheCheck(t *testing.T) {
	_, db, o := setupRatingTest(t, domain.OrderCompleted)
	require.NoError(t, db.Create(&domain.Rating{OrderID: o.ID, RaterID: o.BuyerID, RateeID: o.SellerID, Stars: 3}).Error)
	err := db.Create(&domain.Rating{OrderID: o.ID, RaterID: o.BuyerID, RateeID: o.SellerID, Stars: 5}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err), err.Error())
}

func TestSubmitRating_Rejections(t *testing.T) {
	ctx := context.Background()

	svc, _, o := setupRatingTest(t, domain.OrderPending)
	_, err := svc.SubmitRating(ctx, o.ID, o.BuyerID, 5, "")
	assert.ErrorIs(t, err, domain.ErrOrderNotCompleted)

	svc, _, o = setupRatingTest(t, domain.OrderCompleted)
	for _, stars := range []int{0, 6, -1} {
		_, err = svc.SubmitRating(ctx, o.ID, o.BuyerID, stars, "")
		assert.Equal(t, domain.KindValidation, domain.KindOf(err), "stars %d", stars)
	}
	_, err = svc.SubmitRating(ctx, o.ID, uuid.New(), 5, "")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
	_, err = svc.SubmitRating(ctx, uuid.New(), o.BuyerID, 5, "")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMyRating(t *testing.T) {
	svc, _, o := setupRatingTest(t, domain.OrderCompleted)
	ctx := context.Background()

	r, err := svc.MyRating(ctx, o.ID, o.BuyerID)
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = svc.SubmitRating(ctx, o.ID, o.BuyerID, 3, "ok")
	require.NoError(t, err)
	r, err = svc.MyRating(ctx, o.ID, o.BuyerID)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 3, r.Stars)
}
