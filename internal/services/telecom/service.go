// Package telecom sells carrier phone numbers and sends SMS from them.
package telecom

import (
	"context"
	"errors"
	"regexp"
	"strings"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/provisioning"

	"go.uber.org/zap"
)

const (
	DefaultCountry    = "US"
	DefaultSearchSize = 10
	MaxSearchSize     = 50
	DefaultPageSize   = 20
	MaxPageSize       = 100
)

var (
	countryCode = regexp.MustCompile(`^[A-Z]{2}$`)
	e164        = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

type Service struct {
	store    repositories.Store
	numbers  provisioning.NumberGateway
	messages provisioning.Messenger
	log      *zap.Logger
}

func NewService(store repositories.Store, numbers provisioning.NumberGateway, messages provisioning.Messenger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, numbers: numbers, messages: messages, log: log.Named("telecom")}
}

// SearchNumbers lists numbers available for purchase in a country.
func (s *Service) SearchNumbers(ctx context.Context, country string, limit int) ([]provisioning.AvailableNumber, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = DefaultCountry
	}
	if !countryCode.MatchString(country) {
		return nil, apperrors.Validation("country must be a two letter ISO code")
	}
	if limit <= 0 {
		limit = DefaultSearchSize
	}
	if limit > MaxSearchSize {
		limit = MaxSearchSize
	}
	numbers, err := s.numbers.SearchNumbers(ctx, provisioning.NumberQuery{
		CountryCode: country,
		Limit:       limit,
		Features:    []string{"sms", "voice"},
	})
	if err != nil {
		return nil, err
	}
	if numbers == nil {
		numbers = []provisioning.AvailableNumber{}
	}
	return numbers, nil
}

type NumberResult struct {
	Number   *models.PhoneNumber `json:"number"`
	Replayed bool                `json:"replayed"`
}

// PurchaseNumber claims phoneNumber for the user, then orders it from the
// carrier. Buying a number the user already holds returns it with Replayed
// set.
func (s *Service) PurchaseNumber(ctx context.Context, userID uint, phoneNumber string) (*NumberResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if !e164.MatchString(phoneNumber) {
		return nil, apperrors.Validation("phone number must be in E.164 format")
	}
	log := s.log.With(zap.Uint("user_id", userID), zap.String("phone_number", phoneNumber))

	if existing, err := s.store.Telecom().GetNumber(ctx, phoneNumber); err == nil {
		if res, err := existingNumber(existing, userID); res != nil || err != nil {
			return res, err
		}
	} else if !errors.Is(err, repositories.ErrNumberNotFound) {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	number := &models.PhoneNumber{UserID: userID, PhoneNumber: phoneNumber, Status: models.NumberStatusPending}
	if err := s.store.Telecom().ClaimNumber(ctx, number); err != nil {
		if !errors.Is(err, repositories.ErrNumberTaken) {
			return nil, apperrors.ErrInternal.Wrap(err)
		}
		// A concurrent purchase claimed it first.
		existing, gerr := s.store.Telecom().GetNumber(ctx, phoneNumber)
		if gerr != nil {
			return nil, apperrors.ErrNumberUnavailable
		}
		if res, err := existingNumber(existing, userID); res != nil || err != nil {
			return res, err
		}
		return nil, apperrors.ErrNumberUnavailable
	}

	order, err := s.numbers.PurchaseNumber(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, provisioning.ErrOutcomeUnknown) {
			// The order may exist upstream. The row stays PENDING until the
			// carrier's number_order event settles it.
			log.Warn("number order outcome unknown", zap.Error(err))
			return nil, err
		}
		log.Error("number order failed", zap.Error(err))
		s.setNumber(context.WithoutCancel(ctx), log, phoneNumber, "", models.NumberStatusFailed)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	number.OrderID = order.ID
	number.Status = NumberStatus(order.Status)
	s.setNumber(ctx, log, phoneNumber, order.ID, number.Status)
	log.Info("number purchased", zap.String("order_id", order.ID), zap.String("status", number.Status))
	return &NumberResult{Number: number}, nil
}

// existingNumber resolves a purchase of a number that already has a row.
// Both results are nil when a FAILED row may be reclaimed.
func existingNumber(n *models.PhoneNumber, userID uint) (*NumberResult, error) {
	switch {
	case n.Status == models.NumberStatusFailed:
		return nil, nil
	case n.UserID != userID:
		return nil, apperrors.ErrNumberUnavailable
	case n.Status == models.NumberStatusPending:
		return nil, apperrors.ErrNumberPending
	}
	return &NumberResult{Number: n, Replayed: true}, nil
}

func (s *Service) setNumber(ctx context.Context, log *zap.Logger, phoneNumber, orderID, status string) {
	if _, err := s.store.Telecom().UpdateNumber(ctx, phoneNumber, orderID, status); err != nil {
		log.Error("failed to record number status", zap.String("status", status), zap.Error(err))
	}
}

// NumberStatus maps a carrier order status onto a PhoneNumber status.
func NumberStatus(orderStatus string) string {
	switch strings.ToLower(orderStatus) {
	case provisioning.NumberOrderSuccess:
		return models.NumberStatusActive
	case provisioning.NumberOrderFailure:
		return models.NumberStatusFailed
	}
	return models.NumberStatusPending
}

// SyncNumber applies a carrier number order event and reports whether a
// held number matched.
func (s *Service) SyncNumber(ctx context.Context, phoneNumber, orderID, orderStatus string) (bool, error) {
	return s.store.Telecom().UpdateNumber(ctx, phoneNumber, orderID, NumberStatus(orderStatus))
}

// Owner returns the user holding phoneNumber, or nil.
func (s *Service) Owner(ctx context.Context, phoneNumber string) (*uint, error) {
	n, err := s.store.Telecom().GetNumber(ctx, phoneNumber)
	switch {
	case errors.Is(err, repositories.ErrNumberNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case n.Status == models.NumberStatusFailed:
		return nil, nil
	}
	return &n.UserID, nil
}

func (s *Service) Numbers(ctx context.Context, userID uint) ([]models.PhoneNumber, error) {
	numbers, err := s.store.Telecom().ListNumbers(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if numbers == nil {
		numbers = []models.PhoneNumber{}
	}
	return numbers, nil
}

type SendRequest struct {
	UserID uint
	From   string
	To     string
	Text   string
}

// SendMessage sends an SMS from an active number the user holds and logs
// it in their message history.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*models.Message, error) {
	req.From = strings.TrimSpace(req.From)
	req.To = strings.TrimSpace(req.To)
	if !e164.MatchString(req.From) || !e164.MatchString(req.To) {
		return nil, apperrors.Validation("phone numbers must be in E.164 format")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.Validation("message text is required")
	}

	from, err := s.store.Telecom().GetNumber(ctx, req.From)
	switch {
	case errors.Is(err, repositories.ErrNumberNotFound):
		return nil, apperrors.ErrNumberNotOwned
	case err != nil:
		return nil, apperrors.ErrInternal.Wrap(err)
	case from.UserID != req.UserID || from.Status != models.NumberStatusActive:
		return nil, apperrors.ErrNumberNotOwned
	}

	sent, err := s.messages.SendMessage(ctx, provisioning.OutboundMessage{From: req.From, To: req.To, Text: req.Text})
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	msg := &models.Message{
		UserID:     &userID,
		ExternalID: sent.ID,
		From:       req.From,
		To:         req.To,
		Text:       req.Text,
		Direction:  models.DirectionOutbound,
		Status:     sent.Status,
	}
	if _, err := s.store.Telecom().SaveMessage(context.WithoutCancel(ctx), msg); err != nil {
		// The carrier accepted it; only the history row is missing.
		s.log.Error("failed to record sent message", zap.String("external_id", sent.ID), zap.Error(err))
	}
	return msg, nil
}

type MessagePage struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Service) Messages(ctx context.Context, userID uint, limit, offset int) (*MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	msgs, total, err := s.store.Telecom().ListMessages(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &MessagePage{Messages: msgs, Total: total, Limit: limit, Offset: offset}, nil
}
