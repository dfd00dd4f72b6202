package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/tokens"
)

const (
	localUser   = "session_user"
	localDevice = "session_device"
)

// Session resolves the bearer token and stores the user and device in
// locals. Rejections go through the app's error handler as 401s.
func Session(loader *tokens.Loader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, device, err := loader.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return apperr.From(err)
		}
		c.Locals(localUser, user)
		c.Locals(localDevice, device)
		return c.Next()
	}
}

// SessionUser returns the user stored by Session.
func SessionUser(c *fiber.Ctx) (accounts.User, bool) {
	u, ok := c.Locals(localUser).(accounts.User)
	return u, ok
}

// SessionDevice returns the device stored by Session.
func SessionDevice(c *fiber.Ctx) (accounts.Device, bool) {
	d, ok := c.Locals(localDevice).(accounts.Device)
	return d, ok
}
