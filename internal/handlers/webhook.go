package handlers

import (
	"context"
	"errors"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/services/webhook"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	headerStripeSignature   = "Stripe-Signature"
	headerPaystackSignature = "X-Paystack-Signature"
	headerTelnyxSignature   = "Telnyx-Signature-Ed25519"
	headerTelnyxTimestamp   = "Telnyx-Timestamp"
)

// WebhookProcessor verifies and applies provider callbacks.
type WebhookProcessor interface {
	HandleStripe(ctx context.Context, payload []byte, signature string) (webhook.Outcome, error)
	HandlePaystack(ctx context.Context, payload []byte, signature string) (webhook.Outcome, error)
	HandleTelnyx(ctx context.Context, payload []byte, signature, timestamp string) (webhook.Outcome, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	log       *zap.Logger
}

func NewWebhookHandler(processor WebhookProcessor, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{processor: processor, log: log.Named("webhook")}
}

func (h *WebhookHandler) Stripe(c *fiber.Ctx) error {
	out, err := h.processor.HandleStripe(c.UserContext(), c.Body(), c.Get(headerStripeSignature))
	return h.reply(c, "stripe", out, err)
}

func (h *WebhookHandler) Paystack(c *fiber.Ctx) error {
	out, err := h.processor.HandlePaystack(c.UserContext(), c.Body(), c.Get(headerPaystackSignature))
	return h.reply(c, "paystack", out, err)
}

func (h *WebhookHandler) Telnyx(c *fiber.Ctx) error {
	out, err := h.processor.HandleTelnyx(c.UserContext(), c.Body(),
		c.Get(headerTelnyxSignature), c.Get(headerTelnyxTimestamp))
	return h.reply(c, "telnyx", out, err)
}

// reply acknowledges anything the provider should not resend. Bad signatures
// get 401; retryable failures get 503 so the provider redelivers.
func (h *WebhookHandler) reply(c *fiber.Ctx, provider string, out webhook.Outcome, err error) error {
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"received": true, "outcome": out})
	case errors.Is(err, apperrors.ErrInvalidSignature):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	case apperrors.Retryable(err):
		h.log.Warn("webhook deferred", zap.String("provider", provider), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "retry later"})
	default:
		h.log.Error("webhook failed", zap.String("provider", provider), zap.Error(err))
		return c.JSON(fiber.Map{"received": true, "outcome": webhook.OutcomeRejected})
	}
}
