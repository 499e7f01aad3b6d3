package uploads

import (
	"errors"

	uploadsvc "unimarket-backend/internal/application/uploads"
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/middleware"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers bundles upload handlers with the service.
type Handlers struct {
	Service *uploadsvc.Service
}

type uploadRequest struct {
	FileName string `json:"file_name"`
}

// ListingPhoto POST /api/v1/uploads/listing-photo
func (h *Handlers) ListingPhoto(c *fiber.Ctx) error {
	return h.signed(c, uploadsvc.BucketListingPhotos)
}

// DisputeEvidence POST /api/v1/uploads/dispute-evidence
func (h *Handlers) DisputeEvidence(c *fiber.Ctx) error {
	return h.signed(c, uploadsvc.BucketDisputeEvidence)
}

func (h *Handlers) signed(c *fiber.Ctx, bucket string) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req uploadRequest
	if err := c.BodyParser(&req); err != nil || req.FileName == "" {
		return response.Error(c, "file_name is required", fiber.StatusBadRequest, nil)
	}

	res, err := h.Service.GetSignedUploadURL(c.UserContext(), bucket, userID, req.FileName)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return response.FromError(c, de)
		}
		log.Error().Err(err).Str("bucket", bucket).Msg("upload: failed to generate signed URL")
		return response.Error(c, "Failed to generate upload URL", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Upload URL generated", res, nil)
}
