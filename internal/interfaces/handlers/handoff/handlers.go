package handoff

import (
	handoffsvc "unimarket-backend/internal/application/handoff"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *handoffsvc.Service
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// verifyTokenRequest mirrors the deep link query: ?oid=<order>&t=<token>.
type verifyTokenRequest struct {
	OrderID string `json:"oid"`
	Token   string `json:"t"`
}

// GenerateCode POST /api/v1/orders/:id/handoff/code (seller)
func (h *Handlers) GenerateCode(c *fiber.Ctx) error {
	sellerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	issued, err := h.Service.GenerateCode(c.UserContext(), orderID, sellerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Handoff code generated", issued, nil)
}

// SendToBuyer POST /api/v1/orders/:id/handoff/send (seller)
func (h *Handlers) SendToBuyer(c *fiber.Ctx) error {
	sellerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.Service.SendToBuyer(c.UserContext(), orderID, sellerID); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Code sent to buyer", nil, nil)
}

// Status GET /api/v1/orders/:id/handoff (polled by both parties)
func (h *Handlers) Status(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.Service.Status(c.UserContext(), orderID, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Handoff status", view, nil)
}

// VerifyCode POST /api/v1/orders/:id/handoff/verify (buyer)
func (h *Handlers) VerifyCode(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req verifyCodeRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return response.Error(c, "code is required", fiber.StatusBadRequest, nil)
	}
	order, err := h.Service.VerifyCode(c.UserContext(), orderID, buyerID, req.Code)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Handoff confirmed", order, nil)
}

// VerifyToken POST /api/v1/handoff/verify-token (buyer, from the QR deep link)
func (h *Handlers) VerifyToken(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req verifyTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil || req.Token == "" {
		return response.Error(c, "oid and t are required", fiber.StatusBadRequest, nil)
	}
	order, err := h.Service.VerifyToken(c.UserContext(), orderID, buyerID, req.Token)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Handoff confirmed", order, nil)
}

// ConfirmDelivery POST /api/v1/orders/:id/confirm-delivery (buyer, only when no code was ever issued)
func (h *Handlers) ConfirmDelivery(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	order, err := h.Service.ConfirmWithoutCode(c.UserContext(), orderID, buyerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Delivery confirmed", order, nil)
}
