// Package middleware provides HTTP middleware components for the application.
package middleware

import (
	"context"
	"strings"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/utils"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token into current user claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.UserClaims, error)
}

// AuthMiddleware handles JWT token validation and user authentication.
type AuthMiddleware struct {
	auth Authenticator
	log  *zap.Logger
}

func NewAuthMiddleware(auth Authenticator, log *zap.Logger) *AuthMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthMiddleware{auth: auth, log: log.Named("auth")}
}

// Handler validates the bearer token, including its token version, and
// stores the claims in the request context.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return response.FromError(c, apperrors.ErrUnauthenticated.WithMessage("missing authorization header"))
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.FromError(c, apperrors.ErrUnauthenticated.WithMessage("invalid authorization format"))
	}

	claims, err := m.auth.Authenticate(c.UserContext(), strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
	if err != nil {
		m.log.Debug("rejected bearer token", zap.String("path", c.Path()), zap.Error(err))
		return response.FromError(c, err)
	}

	c.Locals(utils.ClaimsKey, claims)
	return c.Next()
}

// AdminOnly rejects requests whose claims do not carry the admin role.
func AdminOnly(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.FromError(c, apperrors.ErrUnauthenticated)
	}
	if !claims.IsAdmin() {
		return response.FromError(c, apperrors.ErrForbidden.WithMessage("admin privileges required"))
	}
	return c.Next()
}
