package response

import (
	apperrors "airswitch/internal/errors"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// FromError renders err with the status of its kind. Only the DomainError
// message reaches the client; causes stay in the logs.
func FromError(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": apperrors.PublicMessage(err)}
	if de, ok := apperrors.As(err); ok {
		body["code"] = de.Code
	}
	return c.Status(apperrors.HTTPStatus(err)).JSON(body)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, "Unauthorized")
}

func ValidationError(c *fiber.Ctx, message string, fields map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  message,
		"code":   "VALIDATION_FAILED",
		"fields": fields,
	})
}
