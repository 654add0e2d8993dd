package handlers

import (
	"context"

	"airswitch/internal/models"
	"airswitch/internal/services/wallet"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// BonusAwarder grants points outside the purchase flow.
type BonusAwarder interface {
	AwardBonus(ctx context.Context, userID uint, points int64, description string) (*models.UserPoints, error)
}

// AdminHandler exposes manual ledger adjustments. Routes are mounted behind
// middleware.AdminOnly.
type AdminHandler struct {
	wallets wallet.Service
	points  BonusAwarder
}

func NewAdminHandler(wallets wallet.Service, points BonusAwarder) *AdminHandler {
	return &AdminHandler{wallets: wallets, points: points}
}

type fundInput struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency    string          `json:"currency" validate:"required,currency"`
	Reference   string          `json:"reference" validate:"max=100"`
	Description string          `json:"description" validate:"max=500"`
}

// FundWallet credits a user's wallet. A repeated reference is a no-op.
func (h *AdminHandler) FundWallet(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	userID, err := paramID(c, "userId")
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[fundInput](c)
	if err != nil {
		return fail(c, err)
	}

	res, err := h.wallets.Fund(c.UserContext(), wallet.FundRequest{
		UserID:      userID,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Reference:   input.Reference,
		Provider:    "manual",
		Description: input.Description,
		Metadata:    models.JSON{"funded_by": claims.UserID},
	})
	if err != nil {
		return fail(c, err)
	}
	if res.Replayed {
		return response.Success(c, "Funding already applied", res)
	}
	return response.Created(c, "Wallet funded", res)
}

type bonusInput struct {
	UserID      uint   `json:"user_id" validate:"required"`
	Points      int64  `json:"points" validate:"gt=0"`
	Description string `json:"description" validate:"max=500"`
}

func (h *AdminHandler) AwardBonus(c *fiber.Ctx) error {
	input, err := bind[bonusInput](c)
	if err != nil {
		return fail(c, err)
	}
	up, err := h.points.AwardBonus(c.UserContext(), input.UserID, input.Points, input.Description)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Bonus awarded", up)
}
