package listings

import (
	auctionsvc "unimarket-backend/internal/application/auctions"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// Handlers serves listings and their auctions.
type Handlers struct {
	Service *auctionsvc.Service
}

type bidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateListing POST /api/v1/listings
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	sellerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var in auctionsvc.CreateListingInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	out, err := h.Service.CreateListing(c.UserContext(), sellerID, in)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", out, nil)
}

// ListLive GET /api/v1/listings
func (h *Handlers) ListLive(c *fiber.Ctx) error {
	listings, err := h.Service.ListLiveListings(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listings fetched successfully", listings, fiber.Map{"count": len(listings)})
}

// ListMine GET /api/v1/listings/mine
func (h *Handlers) ListMine(c *fiber.Ctx) error {
	sellerID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	listings, err := h.Service.ListSellerListings(c.UserContext(), sellerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listings fetched successfully", listings, fiber.Map{"count": len(listings)})
}

// GetListing GET /api/v1/listings/:id
func (h *Handlers) GetListing(c *fiber.Ctx) error {
	id, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	out, err := h.Service.GetListing(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing fetched successfully", out, nil)
}

// GetAuction GET /api/v1/auctions/:id. Polled by the auction page.
func (h *Handlers) GetAuction(c *fiber.Ctx) error {
	id, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	a, err := h.Service.GetAuction(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Auction fetched successfully", a, nil)
}

// ListBids GET /api/v1/auctions/:id/bids
func (h *Handlers) ListBids(c *fiber.Ctx) error {
	id, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	bids, err := h.Service.ListBids(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Bids fetched successfully", bids, fiber.Map{"count": len(bids)})
}

// PriceHistory GET /api/v1/auctions/:id/price-history
func (h *Handlers) PriceHistory(c *fiber.Ctx) error {
	id, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	points, err := h.Service.PriceHistory(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Price history fetched successfully", points, nil)
}

// PlaceBid POST /api/v1/auctions/:id/bids
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	bidderID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req bidRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "amount is required", fiber.StatusBadRequest, nil)
	}
	bid, err := h.Service.PlaceBid(c.UserContext(), id, bidderID, middleware.CurrentUserName(c), req.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Bid placed", bid, nil)
}
