package handlers

import (
	"airswitch/internal/services/telecom"
	"airswitch/internal/utils"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type TelecomHandler struct {
	telecom *telecom.Service
}

func NewTelecomHandler(svc *telecom.Service) *TelecomHandler {
	return &TelecomHandler{telecom: svc}
}

// SearchNumbers lists purchasable numbers for ?country= (default US).
func (h *TelecomHandler) SearchNumbers(c *fiber.Ctx) error {
	numbers, err := h.telecom.SearchNumbers(c.UserContext(), c.Query("country"), c.QueryInt("limit"))
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", numbers)
}

type purchaseNumberInput struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
}

func (h *TelecomHandler) PurchaseNumber(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[purchaseNumberInput](c)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.telecom.PurchaseNumber(c.UserContext(), claims.UserID, input.PhoneNumber)
	if err != nil {
		return fail(c, err)
	}
	if res.Replayed {
		return response.Success(c, "Number already owned", res.Number)
	}
	return response.Created(c, "Number purchased", res.Number)
}

func (h *TelecomHandler) MyNumbers(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	numbers, err := h.telecom.Numbers(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", numbers)
}

type sendMessageInput struct {
	From string `json:"from" validate:"required,e164"`
	To   string `json:"to" validate:"required,e164"`
	Text string `json:"text" validate:"required,max=1600"`
}

func (h *TelecomHandler) SendMessage(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[sendMessageInput](c)
	if err != nil {
		return fail(c, err)
	}
	msg, err := h.telecom.SendMessage(c.UserContext(), telecom.SendRequest{
		UserID: claims.UserID,
		From:   input.From,
		To:     input.To,
		Text:   input.Text,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, "Message sent", msg)
}

func (h *TelecomHandler) Messages(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	p := utils.GetPagination(c, telecom.DefaultPageSize)
	page, err := h.telecom.Messages(c.UserContext(), claims.UserID, p.Limit, p.Offset)
	if err != nil {
		return fail(c, err)
	}
	p.Limit, p.Offset = page.Limit, page.Offset
	return c.JSON(utils.NewPaginatedResponse(page.Messages, p, page.Total))
}
