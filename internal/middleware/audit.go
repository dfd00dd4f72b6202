package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit logs one structured line per request. Bodies and the Authorization
// header are never logged; the authenticated user id is, when known.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if user, ok := SessionUser(c); ok {
			attrs = append(attrs, slog.String("user_id", user.ID.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.WarnContext(c.UserContext(), "request completed", attrs...)
			return err
		}

		logger.InfoContext(c.UserContext(), "request completed", attrs...)
		return nil
	}
}
