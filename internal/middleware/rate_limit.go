package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edupath/onboarding/internal/phone"
)

const rateLimitPrefix = "rl:otp:"

// OTPRateLimit limits passcode requests per phone, or per client IP when the
// body carries no phone, within a fixed one-minute window. scope separates
// counters of different endpoints. The limiter fails open when Redis is
// missing or erroring.
func OTPRateLimit(cache redis.UniversalClient, scope string, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := phone.Normalize(req.Phone)
		if subject == "" {
			subject = c.IP()
		}
		key := rateLimitPrefix + scope + ":" + subject

		ctx := c.UserContext()
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			// NX keeps the window fixed and repairs a counter left without one.
			pipe.ExpireNX(ctx, key, time.Minute)
			return nil
		})
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit lookup failed", slog.String("scope", scope), slog.Any("error", err))
			}
			return c.Next()
		}
		cnt := incr.Val()
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many verification attempts, try again later")
		}
		return c.Next()
	}
}
