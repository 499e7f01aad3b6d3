package listings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	auctionsvc "unimarket-backend/internal/application/auctions"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type listingsFixture struct {
	app    *fiber.App
	db     *gorm.DB
	seller domain.User
	bidder domain.User
}

func setupListingsTest(t *testing.T) *listingsFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	seller := domain.User{Email: "sam@uni.ac.uk", FullName: "Sam", PasswordHash: "x", Verified: true}
	bidder := domain.User{Email: "bea@uni.ac.uk", FullName: "Bea", PasswordHash: "x", Verified: true}
	require.NoError(t, db.Create(&seller).Error)
	require.NoError(t, db.Create(&bidder).Error)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &Handlers{Service: &auctionsvc.Service{DB: db, Now: func() time.Time { return now }}}

	as := func(u domain.User) fiber.Handler {
		return func(c *fiber.Ctx) error {
			c.Locals("user", map[string]interface{}{"user_id": u.ID.String(), "fullname": u.FullName, "email": u.Email, "role": u.Role})
			return c.Next()
		}
	}
	app := fiber.New()
	app.Post("/listings", as(seller), h.CreateListing)
	app.Get("/listings", h.ListLive)
	app.Get("/listings/mine", as(seller), h.ListMine)
	app.Get("/listings/:id", h.GetListing)
	app.Get("/auctions/:id", h.GetAuction)
	app.Get("/auctions/:id/bids", h.ListBids)
	app.Get("/auctions/:id/price-history", h.PriceHistory)
	app.Post("/auctions/:id/bids", as(bidder), h.PlaceBid)
	app.Post("/own/auctions/:id/bids", as(seller), h.PlaceBid)
	return &listingsFixture{app: app, db: db, seller: seller, bidder: bidder}
}

func (f *listingsFixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *listingsFixture) createListing(t *testing.T) (listingID, auctionID string) {
	status, out := f.do(t, "POST", "/listings", map[string]interface{}{
		"title": "Desk lamp", "category": "Home", "condition": "Good",
		"start_price": "50", "buy_now_price": "100", "duration_days": 3,
	})
	require.Equal(t, fiber.StatusCreated, status, out)
	data := out["data"].(map[string]interface{})
	listing := data["listing"].(map[string]interface{})
	auction := data["auction"].(map[string]interface{})
	return listing["id"].(string), auction["id"].(string)
}

func TestCreateListing_AndReads(t *testing.T) {
	f := setupListingsTest(t)
	listingID, auctionID := f.createListing(t)

	status, out := f.do(t, "GET", "/listings", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 1)

	status, out = f.do(t, "GET", "/listings/mine", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 1)

	status, out = f.do(t, "GET", "/listings/"+listingID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	auction := out["data"].(map[string]interface{})["auction"].(map[string]interface{})
	assert.Equal(t, auctionID, auction["id"])
	assert.Equal(t, "Live", auction["status"])
}

func TestCreateListing_Validation(t *testing.T) {
	f := setupListingsTest(t)
	status, out := f.do(t, "POST", "/listings", map[string]interface{}{"title": "Lamp", "start_price": "0"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "validation", details["kind"])
}

func TestCreateListing_UnverifiedSeller(t *testing.T) {
	f := setupListingsTest(t)
	require.NoError(t, f.db.Model(&domain.User{}).Where("id = ?", f.seller.ID).Update("verified", false).Error)
	status, _ := f.do(t, "POST", "/listings", map[string]interface{}{
		"title": "Desk lamp", "category": "Home", "condition": "Good", "start_price": "50",
	})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestPlaceBid(t *testing.T) {
	f := setupListingsTest(t)
	_, auctionID := f.createListing(t)

	status, out := f.do(t, "POST", "/auctions/"+auctionID+"/bids", map[string]interface{}{"amount": "50"})
	assert.Equal(t, fiber.StatusBadRequest, status, "bids must exceed the current price")
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, "bid_too_low", details["code"])
	assert.Equal(t, "50.00", details["min_amount"])

	status, out = f.do(t, "POST", "/auctions/"+auctionID+"/bids", map[string]interface{}{"amount": "55"})
	require.Equal(t, fiber.StatusCreated, status, out)
	assert.Equal(t, "Bea", out["data"].(map[string]interface{})["bidder_name"])

	status, _ = f.do(t, "POST", "/own/auctions/"+auctionID+"/bids", map[string]interface{}{"amount": "60"})
	assert.Equal(t, fiber.StatusForbidden, status, "sellers cannot bid on their own listing")

	status, out = f.do(t, "GET", "/auctions/"+auctionID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	auction := out["data"].(map[string]interface{})
	assert.Equal(t, "55.00", decimal.RequireFromString(auction["current_price"].(string)).StringFixed(2))
	assert.EqualValues(t, 1, auction["bid_count"])

	_, out = f.do(t, "GET", "/auctions/"+auctionID+"/bids", nil)
	assert.Len(t, out["data"], 1)
	_, out = f.do(t, "GET", "/auctions/"+auctionID+"/price-history", nil)
	assert.Len(t, out["data"], 1)
}

func TestGetAuction_NotFoundAndBadID(t *testing.T) {
	f := setupListingsTest(t)
	status, _ := f.do(t, "GET", "/auctions/not-a-uuid", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.do(t, "GET", "/auctions/550e8400-e29b-41d4-a716-446655440000", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
