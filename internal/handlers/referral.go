package handlers

import (
	"airswitch/internal/services/referral"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type ReferralHandler struct {
	referralService *referral.Service
}

func NewReferralHandler(referralService *referral.Service) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

// Code returns the caller's shareable referral code, creating one if needed.
func (h *ReferralHandler) Code(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	code, err := h.referralService.GetOrCreateCode(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", code)
}

type inviteInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (h *ReferralHandler) Invite(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[inviteInput](c)
	if err != nil {
		return fail(c, err)
	}
	ref, err := h.referralService.Invite(c.UserContext(), claims.UserID, input.Email)
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, "Invitation created", ref)
}

func (h *ReferralHandler) Progress(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	progress, err := h.referralService.Progress(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", progress)
}

func (h *ReferralHandler) History(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	refs, err := h.referralService.History(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", refs)
}

type claimInput struct {
	Code string `json:"code" validate:"required,max=32"`
}

// Claim applies a referral code for an existing account. Non-awarding
// outcomes are reported in the body, not as errors.
func (h *ReferralHandler) Claim(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[claimInput](c)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.referralService.Claim(c.UserContext(), input.Code, claims.UserID, claims.Email)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, string(res.Outcome), res)
}
