package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lambdawarden/lambdawarden/internal/normalize"
)

const loginRateWindow = time.Minute

// LoginRateLimit caps password grant attempts per username, or per client
// IP when no username is sent, using a fixed one minute window in Redis. It
// is a no-op without Redis or with a non-positive limit, and fails open on
// cache errors.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}

		subject := c.IP()
		if body, err := normalize.Body(c.Get(fiber.HeaderContentType), c.Body()); err == nil {
			if body.String("grant_type") == "refresh_token" {
				return c.Next()
			}
			if u := strings.ToLower(strings.TrimSpace(body.String("username"))); u != "" {
				subject = u
			}
		}
		sum := sha256.Sum256([]byte(subject))
		key := "rl:login:" + hex.EncodeToString(sum[:])

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "login rate limit unavailable", slog.Any("error", err))
			}
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, loginRateWindow)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
