package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"unimarket-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return FromError(c, err) })
	resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, e)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestFromError_StatusByKind(t *testing.T) {
	cases := map[error]int{
		domain.ErrBidTooLow:           fiber.StatusBadRequest,
		domain.ErrNotSeller:           fiber.StatusForbidden,
		domain.ErrNotAuthenticated:    fiber.StatusUnauthorized,
		domain.ErrOrderNotFound:       fiber.StatusNotFound,
		domain.ErrAlreadyPaid:         fiber.StatusConflict,
		domain.ErrConcurrentBid:       fiber.StatusConflict,
		domain.ErrInsufficientBalance: fiber.StatusPaymentRequired,
		domain.ErrEmailDelivery:       fiber.StatusBadGateway,
		domain.ErrResendCooldown:      fiber.StatusTooManyRequests,
	}
	for err, want := range cases {
		status, out := render(t, err)
		assert.Equal(t, want, status, err.Error())
		assert.Equal(t, "error", out["status"])
	}
}

func TestFromError_WrappedKeepsDetails(t *testing.T) {
	err := fmt.Errorf("placing bid: %w", domain.ErrBidTooLow.With("min_amount", "50.00"))
	status, out := render(t, err)
	assert.Equal(t, fiber.StatusBadRequest, status)
	body := out["error"].(map[string]interface{})
	assert.EqualValues(t, fiber.StatusBadRequest, body["statusCode"])
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "bid_too_low", details["code"])
	assert.Equal(t, "validation", details["kind"])
	assert.Equal(t, "50.00", details["min_amount"])
}

func TestFromError_UnclassifiedIsHidden(t *testing.T) {
	status, out := render(t, errors.New("pq: connection reset"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Internal Server Error", out["error"].(map[string]interface{})["message"])
}

func TestSuccess_Envelope(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return Success(c, "ok", fiber.Map{"id": 1}, nil) })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "ok", out["message"])
	assert.Equal(t, map[string]interface{}{}, out["metadata"])
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, fiber.StatusConflict, StatusOf(fmt.Errorf("capture: %w", domain.ErrAlreadyPaid)))
	assert.Equal(t, fiber.StatusMethodNotAllowed, StatusOf(fiber.ErrMethodNotAllowed))
	assert.Equal(t, fiber.StatusInternalServerError, StatusOf(errors.New("boom")))
}
