package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"

	"go.uber.org/zap"
)

type telnyxEnvelope struct {
	Data struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"data"`
}

type telnyxPhone struct {
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

type telnyxMessage struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Direction string        `json:"direction"`
	From      telnyxPhone   `json:"from"`
	To        []telnyxPhone `json:"to"`
}

type telnyxNumberOrder struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	PhoneNumbers []telnyxPhone `json:"phone_numbers"`
}

type telnyxCall struct {
	CallControlID string `json:"call_control_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Direction     string `json:"direction"`
	HangupCause   string `json:"hangup_cause"`
}

type telnyxSIM struct {
	ID     string    `json:"id"`
	Status simStatus `json:"status"`
}

// simStatus accepts both {"value": "enabled"} and a bare string.
type simStatus string

func (s *simStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = simStatus(v)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*s = simStatus(obj.Value)
	return nil
}

// HandleTelnyx verifies the ed25519 signature (when a public key is
// configured) and applies carrier lifecycle events. Every write is keyed by
// the carrier's id, so redelivery is harmless.
func (s *Service) HandleTelnyx(ctx context.Context, payload []byte, signature, timestamp string) (out Outcome, err error) {
	defer func() { s.record("telnyx", out, err) }()

	if err := verifyTelnyx(s.telnyxKey, payload, signature, timestamp, s.now()); err != nil {
		s.log.Warn("telnyx webhook rejected", zap.Error(err))
		return "", apperrors.ErrInvalidSignature
	}

	var env telnyxEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.log.Warn("malformed telnyx event", zap.Error(err))
		return OutcomeIgnored, nil
	}
	eventType := env.Data.EventType
	log := s.log.With(zap.String("event_id", env.Data.ID), zap.String("event_type", eventType))

	at := env.Data.OccurredAt
	if at.IsZero() {
		at = s.now()
	}

	switch {
	case eventType == "message.received":
		var m telnyxMessage
		if err := json.Unmarshal(env.Data.Payload, &m); err != nil || m.ID == "" {
			log.Warn("malformed message payload")
			return OutcomeIgnored, nil
		}
		return s.saveMessage(ctx, log, m)

	case eventType == "message.sent" || eventType == "message.finalized":
		var m telnyxMessage
		if err := json.Unmarshal(env.Data.Payload, &m); err != nil || m.ID == "" || len(m.To) == 0 || m.To[0].Status == "" {
			log.Warn("malformed message status payload")
			return OutcomeIgnored, nil
		}
		updated, err := s.store.Telecom().UpdateMessageStatus(ctx, m.ID, m.To[0].Status)
		if err != nil {
			log.Error("failed to update message status", zap.String("external_id", m.ID), zap.Error(err))
			return "", apperrors.ErrInternal.Wrap(err)
		}
		if !updated {
			return OutcomeIgnored, nil
		}
		return OutcomeProcessed, nil

	case eventType == "number_order.complete":
		var order telnyxNumberOrder
		if err := json.Unmarshal(env.Data.Payload, &order); err != nil || order.ID == "" || s.numbers == nil {
			log.Warn("number order event not applied")
			return OutcomeIgnored, nil
		}
		return s.syncNumbers(ctx, log, order)

	case strings.HasPrefix(eventType, "call."):
		status := strings.TrimPrefix(eventType, "call.")
		if status != "initiated" && status != "answered" && status != "hangup" {
			return OutcomeIgnored, nil
		}
		var c telnyxCall
		if err := json.Unmarshal(env.Data.Payload, &c); err != nil || c.CallControlID == "" {
			log.Warn("malformed call payload")
			return OutcomeIgnored, nil
		}
		return s.upsertCall(ctx, log, c, status, at)

	case eventType == "sim_card.status.updated":
		var sim telnyxSIM
		if err := json.Unmarshal(env.Data.Payload, &sim); err != nil || sim.ID == "" {
			log.Warn("malformed sim card payload")
			return OutcomeIgnored, nil
		}
		matched, err := s.esims.MirrorStatus(ctx, sim.ID, string(sim.Status))
		if err != nil {
			log.Error("failed to mirror sim status", zap.String("external_id", sim.ID), zap.Error(err))
			return "", apperrors.ErrInternal.Wrap(err)
		}
		if !matched {
			log.Info("sim status not applied", zap.String("external_id", sim.ID), zap.String("status", string(sim.Status)))
			return OutcomeIgnored, nil
		}
		return OutcomeProcessed, nil
	}

	log.Debug("unhandled telnyx event")
	return OutcomeIgnored, nil
}

func (s *Service) saveMessage(ctx context.Context, log *zap.Logger, m telnyxMessage) (Outcome, error) {
	msg := &models.Message{
		ExternalID: m.ID,
		From:       m.From.PhoneNumber,
		Text:       m.Text,
		Direction:  models.DirectionInbound,
		Status:     "received",
	}
	if len(m.To) > 0 {
		msg.To = m.To[0].PhoneNumber
	}
	if m.Direction != "" {
		msg.Direction = m.Direction
	}
	if s.numbers != nil && msg.To != "" {
		owner, err := s.numbers.Owner(ctx, msg.To)
		if err != nil {
			log.Error("failed to resolve number owner", zap.String("to", msg.To), zap.Error(err))
			return "", apperrors.ErrInternal.Wrap(err)
		}
		msg.UserID = owner
	}

	created, err := s.store.Telecom().SaveMessage(ctx, msg)
	if err != nil {
		log.Error("failed to save message", zap.Error(err))
		return "", apperrors.ErrInternal.Wrap(err)
	}
	if !created {
		return OutcomeReplayed, nil
	}
	return OutcomeProcessed, nil
}

func (s *Service) upsertCall(ctx context.Context, log *zap.Logger, c telnyxCall, status string, at time.Time) (Outcome, error) {
	call := &models.Call{
		CallControlID: c.CallControlID,
		From:          c.From,
		To:            c.To,
		Direction:     c.Direction,
		Status:        status,
	}
	switch status {
	case "initiated":
		call.StartedAt = &at
	case "answered":
		call.AnsweredAt = &at
	case "hangup":
		call.EndedAt = &at
		call.HangupCause = c.HangupCause
	}

	if err := s.store.Telecom().UpsertCall(ctx, call); err != nil {
		log.Error("failed to upsert call", zap.String("call_control_id", c.CallControlID), zap.Error(err))
		return "", apperrors.ErrInternal.Wrap(err)
	}
	return OutcomeProcessed, nil
}

// syncNumbers applies a number order to every number it carries. Per-number
// status wins over the order status.
func (s *Service) syncNumbers(ctx context.Context, log *zap.Logger, order telnyxNumberOrder) (Outcome, error) {
	matched := false
	for _, n := range order.PhoneNumbers {
		if n.PhoneNumber == "" {
			continue
		}
		status := n.Status
		if status == "" {
			status = order.Status
		}
		ok, err := s.numbers.SyncNumber(ctx, n.PhoneNumber, order.ID, status)
		if err != nil {
			log.Error("failed to sync number", zap.String("phone_number", n.PhoneNumber), zap.Error(err))
			return "", apperrors.ErrInternal.Wrap(err)
		}
		matched = matched || ok
	}
	if !matched {
		log.Info("number order matched no held number", zap.String("order_id", order.ID))
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}
