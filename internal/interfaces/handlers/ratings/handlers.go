package ratings

import (
	ratingsvc "unimarket-backend/internal/application/ratings"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *ratingsvc.Service
}

type submitRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

// Submit POST /api/v1/orders/:id/ratings
func (h *Handlers) Submit(c *fiber.Ctx) error {
	raterID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	rating, err := h.Service.SubmitRating(c.UserContext(), orderID, raterID, req.Stars, req.Comment)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Rating submitted", rating, nil)
}

// Mine GET /api/v1/orders/:id/ratings/mine. Data is null until the caller has rated.
func (h *Handlers) Mine(c *fiber.Ctx) error {
	raterID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	orderID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	rating, err := h.Service.MyRating(c.UserContext(), orderID, raterID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Rating", rating, nil)
}

// ListForUser GET /api/v1/users/:id/ratings
func (h *Handlers) ListForUser(c *fiber.Ctx) error {
	userID, err := middleware.ParamUUID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	ratings, err := h.Service.ListForUser(c.UserContext(), userID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Ratings", ratings, map[string]interface{}{"count": len(ratings)})
}
