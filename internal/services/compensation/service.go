// Package compensation undoes external eSIM resources that could not be
// recorded locally. Every compensation is persisted, so a failed
// deactivation is retried by the worker instead of being forgotten.
package compensation

import (
	"context"
	"time"

	"airswitch/internal/config"
	"airswitch/internal/metrics"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/provisioning"

	"go.uber.org/zap"
)

const maxRetryDelay = 24 * time.Hour

type Service struct {
	store     repositories.Store
	provision provisioning.Gateway
	cfg       config.CompensationConfig
	metrics   metrics.Collector
	log       *zap.Logger
	now       func() time.Time

	// in-sweep retry schedule
	retries      uint64
	retryInitial time.Duration
}

func NewService(store repositories.Store, provision provisioning.Gateway, cfg config.CompensationConfig,
	m metrics.Collector, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	return &Service{
		store:        store,
		provision:    provision,
		cfg:          cfg,
		metrics:      metrics.OrNoop(m),
		log:          log.Named("compensation"),
		now:          time.Now,
		retries:      3,
		retryInitial: 500 * time.Millisecond,
	}
}

// Compensate deactivates externalID once and records the outcome. A failed
// attempt is left PENDING for the worker and its error returned.
func (s *Service) Compensate(ctx context.Context, orderReference, externalID, reason string) error {
	log := s.log.With(zap.String("reference", orderReference), zap.String("external_id", externalID))

	rec := &models.Compensation{
		OrderReference: orderReference,
		ExternalID:     externalID,
		Action:         models.CompensationActionDeactivate,
		Reason:         reason,
		Attempts:       1,
	}

	err := s.provision.Deactivate(ctx, externalID)
	if err == nil {
		rec.Status = models.CompensationStatusDone
		s.metrics.Compensation("done")
		log.Info("orphaned resource deactivated")
	} else {
		rec.Status = models.CompensationStatusPending
		rec.LastError = err.Error()
		rec.NextAttemptAt = s.now().Add(s.delay(rec.Attempts))
		s.metrics.Compensation("deferred")
		log.Warn("deactivation failed, queued for retry", zap.Error(err))
	}

	if cerr := s.store.Compensations().Create(ctx, rec); cerr != nil {
		log.Error("failed to persist compensation record", zap.Error(cerr))
		if err == nil {
			return nil
		}
	}
	return err
}

// Report summarizes one worker pass.
type Report struct {
	Retried          int
	Completed        int
	Abandoned        int
	StaleFailed      int
	StaleCompensated int
}

// RunOnce retries due compensations and resolves stale PENDING orders.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	if err := s.retryDue(ctx, &rep); err != nil {
		return rep, err
	}
	if err := s.sweepStale(ctx, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *Service) retryDue(ctx context.Context, rep *Report) error {
	due, err := s.store.Compensations().ListDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rec := &due[i]
		rep.Retried++
		log := s.log.With(
			zap.String("reference", rec.OrderReference),
			zap.String("external_id", rec.ExternalID),
			zap.Int("attempts", rec.Attempts))

		err := s.deactivateWithRetry(ctx, rec.ExternalID)
		rec.Attempts++
		switch {
		case err == nil:
			rec.Status = models.CompensationStatusDone
			rec.LastError = ""
			rep.Completed++
			s.metrics.Compensation("done")
			log.Info("compensation completed")
		case rec.Attempts >= s.cfg.MaxAttempts:
			rec.Status = models.CompensationStatusAbandoned
			rec.LastError = err.Error()
			rep.Abandoned++
			s.metrics.Compensation("abandoned")
			log.Error("compensation abandoned, resource needs manual cleanup", zap.Error(err))
		default:
			rec.LastError = err.Error()
			rec.NextAttemptAt = s.now().Add(s.delay(rec.Attempts))
			s.metrics.Compensation("deferred")
			log.Warn("compensation retry failed", zap.Time("next_attempt_at", rec.NextAttemptAt), zap.Error(err))
		}

		if err := s.store.Compensations().Update(ctx, rec); err != nil {
			log.Error("failed to update compensation record", zap.Error(err))
		}
	}
	return nil
}

// sweepStale fails orders stuck in PENDING. An order that reached the
// provider is failed first and then compensated, so a commit racing the
// sweep never has its live resource deactivated.
func (s *Service) sweepStale(ctx context.Context, rep *Report) error {
	stale, err := s.store.Orders().ListStale(ctx, s.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, order := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := s.log.With(zap.String("reference", order.Reference), zap.String("stage", order.Stage))

		if order.Stage == models.StageExternallyProvisioned && order.ExternalID != "" {
			ok, err := s.store.Orders().MarkFailed(ctx, order.Reference, models.StageCompensatedFailure,
				"not recorded after provisioning")
			if err != nil {
				log.Error("failed to fail stale order", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			rep.StaleCompensated++
			_ = s.Compensate(ctx, order.Reference, order.ExternalID, "stale order after provisioning")
			continue
		}

		ok, err := s.store.Orders().MarkFailed(ctx, order.Reference, order.Stage, "provisioning outcome unknown")
		if err != nil {
			log.Error("failed to fail stale order", zap.Error(err))
			continue
		}
		if ok {
			rep.StaleFailed++
			log.Warn("stale order failed")
		}
	}
	return nil
}

// delay is base * 2^attempts, capped.
func (s *Service) delay(attempts int) time.Duration {
	if attempts > 16 {
		return maxRetryDelay
	}
	d := s.cfg.RetryBase << uint(attempts)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
