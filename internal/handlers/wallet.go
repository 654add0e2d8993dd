package handlers

import (
	"airswitch/internal/services/payment"
	"airswitch/internal/services/wallet"
	"airswitch/internal/utils"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	w, err := h.walletService.GetWallet(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", w)
}

func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	p := utils.GetPagination(c, wallet.DefaultPageSize)
	history, err := h.walletService.History(c.UserContext(), claims.UserID, p.Limit, p.Offset)
	if err != nil {
		return fail(c, err)
	}
	p.Limit, p.Offset = history.Limit, history.Offset
	return c.JSON(utils.NewPaginatedResponse(history.Transactions, p, history.Total))
}

type topUpInput struct {
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency string          `json:"currency" validate:"currency"`
	Method   string          `json:"method" validate:"required,oneof=stripe paystack"`
}

// TopUp starts a card or bank payment that funds the wallet once confirmed.
func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[topUpInput](c)
	if err != nil {
		return fail(c, err)
	}
	method, err := payment.ParseMethod(input.Method)
	if err != nil {
		return fail(c, err)
	}

	charge, err := h.walletService.InitiateTopUp(c.UserContext(), wallet.TopUpRequest{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Amount:   input.Amount,
		Currency: input.Currency,
		Method:   method,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, "Top-up initiated", charge)
}

type confirmInput struct {
	Method    string `json:"method" validate:"required,oneof=stripe paystack"`
	Reference string `json:"reference" validate:"required,max=100"`
}

// ConfirmTopUp verifies a top-up charge and credits the wallet once.
func (h *WalletHandler) ConfirmTopUp(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[confirmInput](c)
	if err != nil {
		return fail(c, err)
	}
	method, err := payment.ParseMethod(input.Method)
	if err != nil {
		return fail(c, err)
	}

	res, err := h.walletService.ConfirmTopUp(c.UserContext(), claims.UserID, method, input.Reference)
	if err != nil {
		return fail(c, err)
	}
	msg := "Wallet funded"
	if res.Replayed {
		msg = "Top-up already processed"
	}
	return response.Success(c, msg, res)
}
