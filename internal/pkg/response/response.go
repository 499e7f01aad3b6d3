package response

import (
	"errors"

	"unimarket-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

const statusSuccess = "success"
const statusError = "error"

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusOK).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusCreated).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// Unauthorized sends 401 with the same shape as other errors (status "error", error.message).
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusUnauthorized, nil)
}

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:    fiber.StatusBadRequest,
	domain.KindAccess:        fiber.StatusForbidden,
	domain.KindUnauthorized:  fiber.StatusUnauthorized,
	domain.KindNotFound:      fiber.StatusNotFound,
	domain.KindStateConflict: fiber.StatusConflict,
	domain.KindConcurrency:   fiber.StatusConflict,
	domain.KindPayment:       fiber.StatusPaymentRequired,
	domain.KindUnavailable:   fiber.StatusBadGateway,
	domain.KindRateLimited:   fiber.StatusTooManyRequests,
}

// StatusOf is the HTTP status an error renders as.
func StatusOf(err error) int {
	var de *domain.Error
	if errors.As(err, &de) {
		if code, ok := kindStatus[de.Kind]; ok {
			return code
		}
		return fiber.StatusInternalServerError
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// FromError writes a classified domain error. Unclassified errors are logged and hidden behind a 500.
func FromError(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	code, ok := kindStatus[de.Kind]
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Str("code", de.Code).Msg("fatal domain error")
		return Error(c, de.Message, fiber.StatusInternalServerError, fiber.Map{"kind": de.Kind, "code": de.Code})
	}
	details := fiber.Map{"kind": de.Kind, "code": de.Code}
	for k, v := range de.Details {
		details[k] = v
	}
	return Error(c, de.Message, code, details)
}
