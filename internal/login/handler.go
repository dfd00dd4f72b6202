package login

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/normalize"
)

// Handler exposes the token endpoint.
type Handler struct {
	dispatcher *Dispatcher
}

// NewHandler constructs a token endpoint handler.
func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// Token handles POST /identity/connect/token. Every client-side failure is a
// 400; only server errors reach the global error handler.
func (h *Handler) Token(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return writeFailure(c, apperr.Validation("Missing request body"))
	}

	body, err := normalize.Body(c.Get(fiber.HeaderContentType), c.Body())
	if err != nil {
		return writeFailure(c, apperr.Validation("Malformed request body"))
	}

	resp, err := h.dispatcher.Login(c.UserContext(), RequestFrom(body, requestHeaders(c)))
	if err != nil {
		return writeFailure(c, apperr.From(err))
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// RequestFrom maps a normalized body and headers onto a Request.
func RequestFrom(body normalize.Values, headers map[string]string) Request {
	deviceType, hasType := normalize.DeviceType(body, headers)
	return Request{
		GrantType:        body.String("grant_type"),
		ClientID:         body.String("client_id"),
		Username:         body.String("username"),
		Password:         body.String("password"),
		Scope:            body.String("scope"),
		RefreshToken:     body.String("refresh_token"),
		TwoFactorToken:   body.String("twofactortoken"),
		DeviceIdentifier: body.String("deviceidentifier"),
		Device: NewDeviceMetadata(
			body.String("devicename"),
			deviceType,
			hasType,
			body.String("devicepushtoken"),
		),
	}
}

func writeFailure(c *fiber.Ctx, e *apperr.Error) error {
	switch e.Kind {
	case apperr.KindServer:
		return e
	case apperr.KindTwoFactorRequired:
		return c.Status(http.StatusBadRequest).JSON(apperr.NewTwoFactorBody(e))
	default:
		return c.Status(http.StatusBadRequest).JSON(apperr.NewValidationBody(e.Message))
	}
}

func requestHeaders(c *fiber.Ctx) map[string]string {
	raw := c.GetReqHeaders()
	flat := make(map[string]string, len(raw))
	for k, vs := range raw {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}
	return normalize.Headers(flat)
}
