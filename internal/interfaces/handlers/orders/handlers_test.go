package orders

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ordersvc "unimarket-backend/internal/application/orders"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/infrastructure/database"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ordersFixture struct {
	app     *fiber.App
	db      *gorm.DB
	seller  domain.User
	buyer   domain.User
	listing domain.Listing
}

func setupOrdersTest(t *testing.T) *ordersFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	f := &ordersFixture{db: db}
	f.seller = domain.User{Email: "sam@uni.ac.uk", FullName: "Sam", PasswordHash: "x", Verified: true}
	f.buyer = domain.User{Email: "bea@uni.ac.uk", FullName: "Bea", PasswordHash: "x", Verified: true}
	require.NoError(t, db.Create(&f.seller).Error)
	require.NoError(t, db.Create(&f.buyer).Error)
	f.listing = domain.Listing{
		Title: "Road bike", Category: "Sports", Condition: "Used", SellerID: f.seller.ID,
		StartPrice: decimal.NewFromInt(50), BuyNowPrice: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		Status: domain.ListingLive,
	}
	require.NoError(t, db.Create(&f.listing).Error)
	require.NoError(t, db.Create(&domain.VirtualWallet{UserID: f.buyer.ID, DemoBalance: decimal.NewFromInt(100)}).Error)
	require.NoError(t, db.Create(&domain.VirtualCard{
		UserID: f.buyer.ID, Brand: "Visa (Demo)", Last4: "4242", ExpMonth: 3, ExpYear: 2028, Token: "tok", Status: domain.CardActive,
	}).Error)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &Handlers{Service: &ordersvc.Service{DB: db, Now: func() time.Time { return now }}}
	as := func(u domain.User) fiber.Handler {
		return func(c *fiber.Ctx) error {
			c.Locals("user", map[string]interface{}{"user_id": u.ID.String(), "email": u.Email})
			return c.Next()
		}
	}

	app := fiber.New()
	app.Post("/orders", as(f.buyer), h.CreateOrder)
	app.Get("/orders/buying", as(f.buyer), h.ListBuying)
	app.Get("/orders/selling", as(f.seller), h.ListSelling)
	app.Get("/orders/:id", as(f.buyer), h.GetOrder)
	app.Post("/orders/:id/capture", as(f.buyer), h.CapturePayment)
	app.Post("/orders/:id/dispute", as(f.buyer), h.OpenDispute)
	app.Post("/seller/orders/:id/dispute", as(f.seller), h.OpenDispute)
	app.Get("/listings/:id/orders", as(f.seller), h.ListForListing)
	app.Get("/buyer/listings/:id/orders", as(f.buyer), h.ListForListing)
	f.app = app
	return f
}

func (f *ordersFixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
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

func (f *ordersFixture) createOrder(t *testing.T) string {
	status, out := f.do(t, "POST", "/orders", map[string]interface{}{"listing_id": f.listing.ID.String(), "buy_now": true})
	require.Equal(t, fiber.StatusCreated, status, out)
	return out["data"].(map[string]interface{})["id"].(string)
}

func TestCheckoutFlow(t *testing.T) {
	f := setupOrdersTest(t)
	orderID := f.createOrder(t)

	status, out := f.do(t, "POST", "/orders/"+orderID+"/capture", map[string]interface{}{"method": "wallet"})
	require.Equal(t, fiber.StatusOK, status, out)
	order := out["data"].(map[string]interface{})
	assert.Equal(t, "Pending", order["status"])
	assert.Equal(t, "wallet", order["payment_method"])
	assert.NotNil(t, order["auto_release_time"])

	status, out = f.do(t, "POST", "/orders/"+orderID+"/capture", map[string]interface{}{"method": "wallet"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_paid", out["error"].(map[string]interface{})["details"].(map[string]interface{})["code"])

	status, out = f.do(t, "GET", "/orders/"+orderID, nil)
	assert.Equal(t, fiber.StatusOK, status)
	history := out["metadata"].(map[string]interface{})["history"].([]interface{})
	assert.GreaterOrEqual(t, len(history), 2)

	_, out = f.do(t, "GET", "/orders/buying", nil)
	assert.Len(t, out["data"], 1)
	_, out = f.do(t, "GET", "/orders/selling", nil)
	assert.Len(t, out["data"], 1)
}

func TestCapture_InsufficientBalanceIsPaymentRequired(t *testing.T) {
	f := setupOrdersTest(t)
	orderID := f.createOrder(t)
	require.NoError(t, f.db.Model(&domain.VirtualWallet{}).Where("user_id = ?", f.buyer.ID).Update("demo_balance", decimal.NewFromInt(1)).Error)

	status, out := f.do(t, "POST", "/orders/"+orderID+"/capture", map[string]interface{}{"method": "wallet"})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "insufficient_balance", out["error"].(map[string]interface{})["details"].(map[string]interface{})["code"])

	status, _ = f.do(t, "POST", "/orders/"+orderID+"/capture", map[string]interface{}{"method": "cheque"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateOrder_Rejections(t *testing.T) {
	f := setupOrdersTest(t)
	status, _ := f.do(t, "POST", "/orders", map[string]interface{}{"listing_id": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = f.do(t, "POST", "/orders", map[string]interface{}{"listing_id": "550e8400-e29b-41d4-a716-446655440000", "buy_now": true})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestOpenDispute(t *testing.T) {
	f := setupOrdersTest(t)
	orderID := f.createOrder(t)

	status, _ := f.do(t, "POST", "/seller/orders/"+orderID+"/dispute", map[string]interface{}{"reason": "never paid"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = f.do(t, "POST", "/orders/"+orderID+"/dispute", map[string]interface{}{"reason": ""})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out := f.do(t, "POST", "/orders/"+orderID+"/dispute", map[string]interface{}{
		"reason": "Frame is cracked", "evidence": []string{"https://example.com/crack.jpg"},
	})
	require.Equal(t, fiber.StatusCreated, status, out)

	_, out = f.do(t, "GET", "/orders/"+orderID, nil)
	assert.Equal(t, "Disputed", out["data"].(map[string]interface{})["status"])
}

func TestListForListing_SellerOnly(t *testing.T) {
	f := setupOrdersTest(t)
	f.createOrder(t)

	status, out := f.do(t, "GET", "/listings/"+f.listing.ID.String()+"/orders", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 1)

	status, _ = f.do(t, "GET", "/buyer/listings/"+f.listing.ID.String()+"/orders", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}
