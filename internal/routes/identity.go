package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/login"
)

// RegisterIdentityRoutes wires the token endpoint. rateLimit sits in front of
// it and may be a pass-through.
func RegisterIdentityRoutes(r fiber.Router, h *login.Handler, rateLimit fiber.Handler) {
	identity := r.Group("/identity")
	identity.Post("/connect/token", rateLimit, h.Token)
}
