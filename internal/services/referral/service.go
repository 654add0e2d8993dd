// Package referral issues referral codes and awards referrers once a
// referee signs up with their code.
package referral

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/metrics"
	"airswitch/internal/models"
	"airswitch/internal/repositories"

	"go.uber.org/zap"
)

const (
	codePrefix    = "AIR-"
	historyLimit  = 50
	codeAttempts  = 5
	progressLimit = 1000
)

// Outcome is the result of a claim. Only Awarded moves points.
type Outcome string

const (
	OutcomeAwarded          Outcome = "AWARDED"
	OutcomeAlreadyCompleted Outcome = "ALREADY_COMPLETED"
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeExpired          Outcome = "EXPIRED"
	OutcomeIneligible       Outcome = "INELIGIBLE"
)

type ClaimResult struct {
	Outcome  Outcome          `json:"outcome"`
	Referral *models.Referral `json:"referral,omitempty"`
	Points   int64            `json:"points_awarded"`
}

type Code struct {
	ReferralCode string `json:"referral_code"`
	Commission   int    `json:"commission"`
}

type Progress struct {
	Total       int               `json:"total"`
	Completed   int               `json:"completed"`
	Pending     int               `json:"pending"`
	Expired     int               `json:"expired"`
	TotalPoints int64             `json:"total_points"`
	Referrals   []models.Referral `json:"referrals"`
}

type Service struct {
	store      repositories.Store
	metrics    metrics.Collector
	log        *zap.Logger
	points     int64
	commission int
	now        func() time.Time
}

func NewService(store repositories.Store, cfg config.LedgerConfig, m metrics.Collector, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReferralPoints <= 0 {
		cfg.ReferralPoints = 500
	}
	if cfg.ReferralCommission <= 0 {
		cfg.ReferralCommission = 5
	}
	return &Service{
		store:      store,
		metrics:    metrics.OrNoop(m),
		log:        log.Named("referral"),
		points:     cfg.ReferralPoints,
		commission: cfg.ReferralCommission,
		now:        time.Now,
	}
}

// GenerateCode returns AIR- followed by 8 upper-case hex characters.
func GenerateCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return codePrefix + strings.ToUpper(hex.EncodeToString(b)), nil
}

// GetOrCreateCode returns the referrer's open shareable code, creating one
// when none is pending.
func (s *Service) GetOrCreateCode(ctx context.Context, referrerID uint) (*Code, error) {
	ref, err := s.store.Referrals().FindOpenCode(ctx, referrerID)
	if err == nil {
		return &Code{ReferralCode: ref.ReferralCode, Commission: s.commission}, nil
	}
	if !errors.Is(err, repositories.ErrReferralNotFound) {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	ref, err = s.create(ctx, referrerID, "")
	if err != nil {
		return nil, err
	}
	return &Code{ReferralCode: ref.ReferralCode, Commission: s.commission}, nil
}

// Invite creates a code dedicated to one email address.
func (s *Service) Invite(ctx context.Context, referrerID uint, email string) (*models.Referral, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.Validation("invitee email is required")
	}

	referrer, err := s.store.Users().GetByID(ctx, referrerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if strings.EqualFold(referrer.Email, email) {
		return nil, apperrors.Validation("you cannot invite yourself")
	}

	if _, err := s.store.Referrals().FindInvite(ctx, referrerID, email); err == nil {
		return nil, apperrors.ErrDuplicateInvite
	} else if !errors.Is(err, repositories.ErrReferralNotFound) {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	return s.create(ctx, referrerID, email)
}

func (s *Service) create(ctx context.Context, referrerID uint, email string) (*models.Referral, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, apperrors.ErrInternal.Wrap(err)
		}
		ref := &models.Referral{
			ReferrerID:   referrerID,
			ReferralCode: code,
			RefereeEmail: email,
			Status:       models.ReferralStatusPending,
			Commission:   s.commission,
		}
		err = s.store.Referrals().Create(ctx, ref)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, repositories.ErrDuplicateCode) {
			return nil, apperrors.ErrInternal.Wrap(err)
		}
	}
	return nil, apperrors.ErrInternal.Wrap(fmt.Errorf("no unique referral code after %d attempts", codeAttempts))
}

func (s *Service) Progress(ctx context.Context, referrerID uint) (*Progress, error) {
	refs, err := s.store.Referrals().ListByReferrer(ctx, referrerID, progressLimit)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	p := &Progress{Total: len(refs), Referrals: refs}
	if p.Referrals == nil {
		p.Referrals = []models.Referral{}
	}
	for _, r := range refs {
		switch r.Status {
		case models.ReferralStatusCompleted:
			p.Completed++
		case models.ReferralStatusPending:
			p.Pending++
		case models.ReferralStatusExpired:
			p.Expired++
		}
		p.TotalPoints += r.PointsAwarded
	}
	return p, nil
}

func (s *Service) History(ctx context.Context, referrerID uint) ([]models.Referral, error) {
	refs, err := s.store.Referrals().ListByReferrer(ctx, referrerID, historyLimit)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if refs == nil {
		refs = []models.Referral{}
	}
	return refs, nil
}

var errLostClaim = errors.New("referral completed concurrently")

// Claim completes the referral identified by code for refereeID and awards
// the referrer. The PENDING to COMPLETED update is the gate: of any number
// of concurrent claims exactly one awards points. Absent and expired codes
// are outcomes, not errors.
func (s *Service) Claim(ctx context.Context, code string, refereeID uint, refereeEmail string) (res *ClaimResult, err error) {
	defer func() {
		o := "error"
		if res != nil {
			o = strings.ToLower(string(res.Outcome))
		}
		s.metrics.LedgerOp("referral_claim", o)
	}()

	code = strings.ToUpper(strings.TrimSpace(code))
	log := s.log.With(zap.String("code", code), zap.Uint("referee_id", refereeID))

	ref, err := s.store.Referrals().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			log.Info("referral code not found")
			return &ClaimResult{Outcome: OutcomeNotFound}, nil
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	switch {
	case ref.Status == models.ReferralStatusCompleted:
		return &ClaimResult{Outcome: OutcomeAlreadyCompleted, Referral: ref}, nil
	case ref.ReferrerID == refereeID:
		return &ClaimResult{Outcome: OutcomeIneligible, Referral: ref}, nil
	case ref.RefereeEmail != "" && !strings.EqualFold(ref.RefereeEmail, strings.TrimSpace(refereeEmail)):
		return &ClaimResult{Outcome: OutcomeIneligible, Referral: ref}, nil
	}

	now := s.now()
	if ref.Expired(now) {
		if ref.Status == models.ReferralStatusPending {
			if _, err := s.store.Referrals().Expire(ctx, code); err != nil {
				log.Warn("failed to expire referral", zap.Error(err))
			}
		}
		return &ClaimResult{Outcome: OutcomeExpired, Referral: ref}, nil
	}

	err = s.store.Atomic(ctx, func(tx repositories.Store) error {
		ok, err := tx.Referrals().Complete(ctx, code, refereeID, s.points, now)
		if err != nil {
			return err
		}
		if !ok {
			return errLostClaim
		}
		if err := tx.Points().Award(ctx, ref.ReferrerID, s.points); err != nil {
			return err
		}
		refID := ref.ID
		desc := "Referral bonus"
		if refereeEmail != "" {
			desc = fmt.Sprintf("Referral bonus from %s", strings.ToLower(strings.TrimSpace(refereeEmail)))
		}
		return tx.Points().AddTransaction(ctx, &models.PointsTransaction{
			UserID:      ref.ReferrerID,
			Amount:      s.points,
			Type:        models.PointsTypeReferral,
			Description: desc,
			ReferralID:  &refID,
			Reference:   code,
		})
	})
	if err != nil {
		if errors.Is(err, errLostClaim) {
			if done, gerr := s.store.Referrals().GetByCode(ctx, code); gerr == nil {
				ref = done
			}
			return &ClaimResult{Outcome: OutcomeAlreadyCompleted, Referral: ref}, nil
		}
		log.Error("referral claim failed", zap.Error(err))
		return nil, apperrors.ErrTransactionFailed.Wrap(err)
	}

	log.Info("referral completed", zap.Uint("referrer_id", ref.ReferrerID), zap.Int64("points", s.points))
	if done, gerr := s.store.Referrals().GetByCode(ctx, code); gerr == nil {
		ref = done
	}
	return &ClaimResult{Outcome: OutcomeAwarded, Referral: ref, Points: s.points}, nil
}
