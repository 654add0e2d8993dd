package handlers

import (
	"airswitch/internal/services/points"
	"airswitch/internal/utils"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type PointsHandler struct {
	pointsService *points.Service
}

func NewPointsHandler(pointsService *points.Service) *PointsHandler {
	return &PointsHandler{pointsService: pointsService}
}

func (h *PointsHandler) Balance(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	bal, err := h.pointsService.Balance(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", bal)
}

func (h *PointsHandler) History(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	p := utils.GetPagination(c, 20)
	history, err := h.pointsService.History(c.UserContext(), claims.UserID, p.Limit, p.Offset)
	if err != nil {
		return fail(c, err)
	}
	p.Limit, p.Offset = history.Limit, history.Offset
	return c.JSON(utils.NewPaginatedResponse(history.Transactions, p, history.Total))
}

// Breakdown returns points earned per source.
func (h *PointsHandler) Breakdown(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	sources, err := h.pointsService.Breakdown(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", sources)
}

type redeemInput struct {
	Points   int64  `json:"points" validate:"gt=0"`
	Currency string `json:"currency" validate:"currency"`
}

// Redeem converts points into wallet credit.
func (h *PointsHandler) Redeem(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[redeemInput](c)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.pointsService.Redeem(c.UserContext(), points.RedeemRequest{
		UserID:   claims.UserID,
		Points:   input.Points,
		Currency: input.Currency,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "Points redeemed", res)
}
