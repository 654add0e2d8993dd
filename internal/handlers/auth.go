package handlers

import (
	apperrors "airswitch/internal/errors"
	"airswitch/internal/services/auth"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerInput struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,password"`
	Name         string `json:"name" validate:"max=100"`
	Phone        string `json:"phone" validate:"omitempty,e164"`
	ReferralCode string `json:"referral_code" validate:"max=32"`
}

// Register creates an account and returns a session token.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	input, err := bind[registerInput](c)
	if err != nil {
		return fail(c, err)
	}

	session, err := h.authService.Register(c.UserContext(), auth.RegisterRequest{
		Email:        input.Email,
		Password:     input.Password,
		Name:         input.Name,
		Phone:        input.Phone,
		ReferralCode: input.ReferralCode,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, "Account created", session)
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user authentication and returns a JWT.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	input, err := bind[loginInput](c)
	if err != nil {
		return fail(c, err)
	}

	session, err := h.authService.Login(c.UserContext(), input.Email, input.Password)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Login successful", session)
}

// Logout revokes every token issued to the caller.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.authService.Logout(c.UserContext(), claims.UserID); err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Successfully logged out", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	user, err := h.authService.Me(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", user)
}

type profileInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	PhotoURL *string `json:"photo_url" validate:"omitempty,max=2048"`
}

// UpdateProfile changes the caller's display name or photo. An empty
// photo_url removes the photo.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[profileInput](c)
	if err != nil {
		return fail(c, err)
	}
	if input.Name == nil && input.PhotoURL == nil {
		return fail(c, apperrors.Validation("nothing to update"))
	}
	user, err := h.authService.UpdateProfile(c.UserContext(), claims.UserID, auth.ProfileUpdate{
		Name:     input.Name,
		PhotoURL: input.PhotoURL,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Profile updated", user)
}
