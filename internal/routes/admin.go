package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/middleware"
	"github.com/lambdawarden/lambdawarden/internal/twofactor"
)

// RegisterAdminRoutes wires operator endpoints behind the admin token. Nothing
// is mounted when token is empty.
func RegisterAdminRoutes(r fiber.Router, h *twofactor.Handler, token string) {
	if token == "" {
		return
	}
	admin := r.Group("/admin", middleware.AdminToken(token))
	admin.Post("/two-factor/setup", h.Setup)
	admin.Post("/two-factor/complete", h.Complete)
}
