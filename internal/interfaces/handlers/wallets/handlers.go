package wallets

import (
	walletsvc "unimarket-backend/internal/application/wallets"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *walletsvc.Service
}

type adjustCreditsRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// Initialize POST /api/v1/wallet/initialize. Safe to call repeatedly.
func (h *Handlers) Initialize(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Service.InitializeUserData(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet ready", w, nil)
}

// Get GET /api/v1/wallet
func (h *Handlers) Get(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.Service.GetWallet(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Wallet", w, nil)
}

// AdjustCredits POST /api/v1/admin/users/:id/credits (admin)
func (h *Handlers) AdjustCredits(c *fiber.Ctx) error {
	userID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req adjustCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "delta must be a number", fiber.StatusBadRequest, nil)
	}
	if req.Delta.IsZero() {
		return response.Error(c, "delta must not be zero", fiber.StatusBadRequest, nil)
	}
	balance, err := h.Service.AdjustCredits(c.UserContext(), userID, req.Delta)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Credits adjusted", fiber.Map{
		"user_id":         userID,
		"credits_balance": balance,
	}, nil)
}
