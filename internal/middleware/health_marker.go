package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keys behind /health/json, /health/errors and /reset.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
	KeyErrorLog  = "health:global:error_log"
)

func skipHealthStats(path string) bool {
	return path == "/" || path == "/reset" ||
		strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon")
}

// HealthMarker counts API traffic in Redis. Each request costs two pipelined
// round trips: one on entry, one with the outcome. Stats writes never fail a request.
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || skipHealthStats(c.Path()) {
			return c.Next()
		}
		ctx := context.Background()
		start := time.Now()
		last, _ := json.Marshal(map[string]interface{}{
			"time":   start.UTC(),
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
		in := rdb.TxPipeline()
		in.Set(ctx, KeyLastReq, last, 0)
		in.Incr(ctx, KeyReqTotal)
		if _, err := in.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("health stats write failed")
		}

		err := c.Next()

		out := rdb.TxPipeline()
		out.Incr(ctx, KeyResCount)
		out.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		status := c.Response().StatusCode()
		if err != nil {
			status = response.StatusOf(err)
		}
		if status >= fiber.StatusInternalServerError {
			out.Incr(ctx, KeyReqErrors)
		}
		if _, perr := out.Exec(ctx); perr != nil {
			log.Warn().Err(perr).Msg("health stats write failed")
		}
		return err
	}
}
