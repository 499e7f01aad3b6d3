package orders

import (
	ordersvc "unimarket-backend/internal/application/orders"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *ordersvc.Service
}

type createOrderRequest struct {
	ListingID string `json:"listing_id"`
	BuyNow    bool   `json:"buy_now"`
}

type captureRequest struct {
	Method string `json:"method"`
}

type disputeRequest struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence"`
}

// CreateOrder POST /api/v1/orders
func (h *Handlers) CreateOrder(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return response.Error(c, "listing_id is required", fiber.StatusBadRequest, nil)
	}
	order, err := h.Service.CreateOrder(c.UserContext(), buyerID, listingID, req.BuyNow)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Order created", order, nil)
}

// CapturePayment POST /api/v1/orders/:id/capture
func (h *Handlers) CapturePayment(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req captureRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	order, err := h.Service.CapturePayment(c.UserContext(), orderID, buyerID, req.Method)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Payment captured", order, nil)
}

// OpenDispute POST /api/v1/orders/:id/dispute
func (h *Handlers) OpenDispute(c *fiber.Ctx) error {
	buyerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req disputeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	dispute, err := h.Service.OpenDispute(c.UserContext(), orderID, buyerID, req.Reason, req.Evidence)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Dispute opened", dispute, nil)
}

// GetOrder GET /api/v1/orders/:id, with the audit trail as metadata.
func (h *Handlers) GetOrder(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	order, err := h.Service.GetOrder(c.UserContext(), orderID, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	history, err := h.Service.History(c.UserContext(), orderID, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Order fetched successfully", order, fiber.Map{"history": history})
}

// ListBuying GET /api/v1/orders/buying
func (h *Handlers) ListBuying(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orders, err := h.Service.ListBuyerOrders(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Orders fetched successfully", orders, fiber.Map{"count": len(orders)})
}

// ListSelling GET /api/v1/orders/selling
func (h *Handlers) ListSelling(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orders, err := h.Service.ListSellerOrders(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Orders fetched successfully", orders, fiber.Map{"count": len(orders)})
}

// ListForListing GET /api/v1/listings/:id/orders: open orders awaiting handoff, seller only.
func (h *Handlers) ListForListing(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	listingID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	orders, err := h.Service.ListOpenOrdersForListing(c.UserContext(), listingID, userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Orders fetched successfully", orders, fiber.Map{"count": len(orders)})
}
