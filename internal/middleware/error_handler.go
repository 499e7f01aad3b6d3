package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const errorLogSize = 100

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return response.FromError(c, err)
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		RequestLogger(c).Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}
	return response.Error(c, message, code, nil)
}

// NewErrorHandler wraps ErrorHandler and records server errors in the health error log.
func NewErrorHandler(rdb *redis.Client) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		out := ErrorHandler(c, err)
		if rdb != nil && c.Response().StatusCode() >= fiber.StatusInternalServerError {
			RecordError(context.Background(), rdb, c.Method(), c.Path(), err)
		}
		return out
	}
}

// RecordError pushes an entry onto the capped error log read by /health/errors.
func RecordError(ctx context.Context, rdb *redis.Client, method, path string, err error) {
	b, _ := json.Marshal(map[string]interface{}{
		"time":    time.Now().UTC(),
		"method":  method,
		"path":    path,
		"message": err.Error(),
	})
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, b)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Warn().Err(perr).Msg("error log write failed")
	}
}
