package account

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/middleware"
	"github.com/lambdawarden/lambdawarden/internal/normalize"
)

// Handler exposes the account endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Prelogin handles POST /api/accounts/prelogin.
func (h *Handler) Prelogin(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	resp, err := h.service.Prelogin(c.UserContext(), body.String("email"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Register handles POST /api/accounts/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	iterations, _ := strconv.Atoi(body.String("kdfiterations"))
	reg := Registration{
		Email:              body.String("email"),
		MasterPasswordHash: body.String("masterpasswordhash"),
		MasterPasswordHint: body.String("masterpasswordhint"),
		Key:                body.String("key"),
		KdfIterations:      iterations,
		Name:               body.String("name"),
	}
	if keys := body.Object("keys"); keys != nil {
		reg.EncryptedPrivate = keys.String("encryptedprivatekey")
		reg.PublicKey = keys.String("publickey")
	}
	if _, err := h.service.Register(c.UserContext(), reg); err != nil {
		return err
	}
	return c.SendStatus(http.StatusOK)
}

// Keys handles POST /api/accounts/keys. Requires Session.
func (h *Handler) Keys(c *fiber.Ctx) error {
	user, ok := middleware.SessionUser(c)
	device, okDevice := middleware.SessionDevice(c)
	if !ok || !okDevice {
		return apperr.Authentication("")
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	resp, err := h.service.SubmitKeys(c.UserContext(), user, device, body.String("encryptedprivatekey"), body.String("publickey"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Profile handles GET /api/accounts/profile. Requires Session.
func (h *Handler) Profile(c *fiber.Ctx) error {
	user, ok := middleware.SessionUser(c)
	if !ok {
		return apperr.Authentication("")
	}
	return c.Status(http.StatusOK).JSON(ProfileOf(user))
}

func parseBody(c *fiber.Ctx) (normalize.Values, error) {
	if len(c.Body()) == 0 {
		return nil, apperr.Validation("Missing request body")
	}
	body, err := normalize.Body(c.Get(fiber.HeaderContentType), c.Body())
	if err != nil {
		return nil, apperr.Validation("Malformed request body")
	}
	return body, nil
}
