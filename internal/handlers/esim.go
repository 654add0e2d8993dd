package handlers

import (
	"context"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/services/esim"
	"airswitch/internal/services/payment"
	"airswitch/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets clients retry wallet purchases safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// Purchaser runs the checkout and purchase flows.
type Purchaser interface {
	Checkout(ctx context.Context, req esim.CheckoutRequest) (*esim.CheckoutResult, error)
	Purchase(ctx context.Context, req esim.PurchaseRequest) (*esim.PurchaseResult, error)
}

type ESimHandler struct {
	orders Purchaser
	esims  *esim.Service
}

func NewESimHandler(orders Purchaser, esims *esim.Service) *ESimHandler {
	return &ESimHandler{orders: orders, esims: esims}
}

func (h *ESimHandler) Plans(c *fiber.Ctx) error {
	return response.Success(c, "OK", h.esims.Plans())
}

type checkoutInput struct {
	PlanID      string `json:"plan_id" validate:"required,max=64"`
	Method      string `json:"method" validate:"required,oneof=stripe paystack"`
	PointsToUse int64  `json:"points_to_use" validate:"gte=0"`
}

// Checkout opens a processor payment for a plan. The client completes it
// and then calls Purchase with the returned reference.
func (h *ESimHandler) Checkout(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[checkoutInput](c)
	if err != nil {
		return fail(c, err)
	}
	method, err := payment.ParseMethod(input.Method)
	if err != nil {
		return fail(c, err)
	}

	res, err := h.orders.Checkout(c.UserContext(), esim.CheckoutRequest{
		UserID:      claims.UserID,
		Email:       claims.Email,
		PlanID:      input.PlanID,
		Method:      method,
		PointsToUse: input.PointsToUse,
	})
	if err != nil {
		return fail(c, err)
	}
	return response.Created(c, "Checkout created", res)
}

type purchaseInput struct {
	PlanID      string `json:"plan_id" validate:"required,max=64"`
	Method      string `json:"method" validate:"required,oneof=stripe paystack wallet"`
	Reference   string `json:"reference" validate:"max=100"`
	PointsToUse int64  `json:"points_to_use" validate:"gte=0"`
}

// Purchase provisions an eSIM against a verified charge or the wallet.
// Wallet purchases take their reference from the Idempotency-Key header
// when the body has none.
func (h *ESimHandler) Purchase(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	input, err := bind[purchaseInput](c)
	if err != nil {
		return fail(c, err)
	}
	method, err := payment.ParseMethod(input.Method)
	if err != nil {
		return fail(c, err)
	}

	reference := input.Reference
	if reference == "" {
		if method != payment.MethodWallet {
			return fail(c, apperrors.Validation("reference is required"))
		}
		reference = c.Get(IdempotencyKeyHeader)
		if reference == "" {
			reference = "wal_" + uuid.NewString()
		}
	}

	res, err := h.orders.Purchase(c.UserContext(), esim.PurchaseRequest{
		UserID:      claims.UserID,
		PlanID:      input.PlanID,
		Method:      method,
		Reference:   reference,
		PointsToUse: input.PointsToUse,
	})
	if err != nil {
		return fail(c, err)
	}
	if res.Replayed {
		return response.Success(c, "Purchase already processed", res)
	}
	return response.Created(c, "eSIM purchased", res)
}

func (h *ESimHandler) List(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	views, err := h.esims.ListForUser(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", views)
}

func (h *ESimHandler) Orders(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	orders, err := h.esims.Orders(c.UserContext(), claims.UserID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", orders)
}

func (h *ESimHandler) Activate(c *fiber.Ctx) error {
	return h.transition(c, h.esims.Activate, "eSIM activated")
}

func (h *ESimHandler) Deactivate(c *fiber.Ctx) error {
	return h.transition(c, h.esims.Deactivate, "eSIM deactivated")
}

func (h *ESimHandler) transition(c *fiber.Ctx, fn func(context.Context, uint, uint) (*models.ESim, error), msg string) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	e, err := fn(c.UserContext(), claims.UserID, id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, msg, e)
}

func (h *ESimHandler) Usage(c *fiber.Ctx) error {
	claims, err := currentUser(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	usage, err := h.esims.Usage(c.UserContext(), claims.UserID, id)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, "OK", usage)
}
