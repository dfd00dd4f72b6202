package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/account"
)

// RegisterAccountRoutes wires /api/accounts. session guards the endpoints
// that act on the caller's own account.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, session fiber.Handler) {
	accounts := r.Group("/api/accounts")
	accounts.Post("/prelogin", h.Prelogin)
	accounts.Post("/register", h.Register)
	accounts.Post("/keys", session, h.Keys)
	accounts.Get("/profile", session, h.Profile)
}
