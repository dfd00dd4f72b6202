package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenHeader carries the operator token.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken admits requests whose X-Admin-Token equals token. An empty
// token rejects everything.
func AdminToken(token string) fiber.Handler {
	want := sha256.Sum256([]byte(token))
	return func(c *fiber.Ctx) error {
		got := sha256.Sum256([]byte(c.Get(AdminTokenHeader)))
		if token == "" || subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
