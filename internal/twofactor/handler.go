package twofactor

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/apperr"
)

// Handler exposes enrollment to operators.
type Handler struct {
	service *Service
}

// NewHandler constructs an enrollment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type enrollRequest struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

// Setup answers with the QR code data URL as plain text.
func (h *Handler) Setup(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).SendString(err.Error())
	}
	prov, err := h.service.Setup(c.UserContext(), req.Email)
	if err != nil {
		return writeText(c, err)
	}
	return c.Status(http.StatusOK).SendString(prov.QRCode)
}

// Complete answers with a status line.
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).SendString(err.Error())
	}
	if err := h.service.Complete(c.UserContext(), req.Email, req.Code); err != nil {
		return writeText(c, err)
	}
	return c.Status(http.StatusOK).SendString(CompletedMessage)
}

func writeText(c *fiber.Ctx, err error) error {
	e := apperr.From(err)
	if e.Kind == apperr.KindServer {
		return e
	}
	return c.Status(http.StatusBadRequest).SendString("ERROR, " + e.Message)
}
