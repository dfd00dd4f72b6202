package apperr

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ValidationBody is the generic 400 payload clients expect.
type ValidationBody struct {
	ValidationErrors map[string][]string `json:"ValidationErrors"`
	Object           string              `json:"Object"`
}

// MessageBody is used for 401 and 5xx responses.
type MessageBody struct {
	Message string `json:"Message"`
	Object  string `json:"Object"`
}

// TwoFactorBody is the challenge returned by the token endpoint. Field order
// matters to clients that compare the payload verbatim.
type TwoFactorBody struct {
	Error               string          `json:"error"`
	ErrorDescription    string          `json:"error_description"`
	TwoFactorProviders  []int           `json:"TwoFactorProviders"`
	TwoFactorProviders2 map[string]*any `json:"TwoFactorProviders2"`
}

// NewValidationBody wraps a single message.
func NewValidationBody(message string) ValidationBody {
	return ValidationBody{ValidationErrors: map[string][]string{"": {message}}, Object: "error"}
}

// NewTwoFactorBody builds the challenge for the given providers.
func NewTwoFactorBody(e *Error) TwoFactorBody {
	providers := e.Providers
	if providers == nil {
		providers = []int{}
	}
	byID := make(map[string]*any, len(providers))
	for _, p := range providers {
		byID[strconv.Itoa(p)] = nil
	}
	return TwoFactorBody{
		Error:               "invalid_grant",
		ErrorDescription:    e.Message,
		TwoFactorProviders:  providers,
		TwoFactorProviders2: byID,
	}
}

// Write renders e on c with the status its kind maps to.
func Write(c *fiber.Ctx, e *Error) error {
	switch e.Kind {
	case KindValidation:
		return c.Status(http.StatusBadRequest).JSON(NewValidationBody(e.Message))
	case KindTwoFactorRequired:
		return c.Status(http.StatusBadRequest).JSON(NewTwoFactorBody(e))
	case KindAuthentication:
		return c.Status(http.StatusUnauthorized).JSON(MessageBody{Message: e.Message, Object: "error"})
	default:
		return c.Status(http.StatusInternalServerError).JSON(MessageBody{Message: serverMessage, Object: "error"})
	}
}

// Handler is the Fiber ErrorHandler. Server errors are logged with their
// cause; the client only ever sees the generic message.
func Handler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(MessageBody{Message: fe.Message, Object: "error"})
		}

		e := From(err)
		if e.Kind == KindServer && logger != nil {
			requestID, _ := c.Locals("X-Request-ID").(string)
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", e.Err),
			)
		}
		return Write(c, e)
	}
}
