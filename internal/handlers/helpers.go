package handlers

import (
	"strconv"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/utils"
	"airswitch/internal/utils/response"
	"airswitch/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// bind parses the JSON body into T and validates its tags.
func bind[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, apperrors.Validation("invalid request body")
	}
	if err := validation.Struct(&input); err != nil {
		return nil, err
	}
	return &input, nil
}

// fail renders err, including per-field details for validation failures.
func fail(c *fiber.Ctx, err error) error {
	if verr, ok := err.(*validation.Error); ok {
		return response.ValidationError(c, verr.Message, verr.Fields)
	}
	return response.FromError(c, err)
}

func currentUser(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return claims, nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid " + name)
	}
	return uint(id), nil
}
