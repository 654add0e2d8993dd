package compensation

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

func (s *Service) deactivateWithRetry(ctx context.Context, externalID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxInterval = 10 * s.retryInitial
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		return s.provision.Deactivate(ctx, externalID)
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx))
}

// Worker runs Service.RunOnce on an interval.
type Worker struct {
	svc      *Service
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewWorker(svc *Service, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		svc:      svc,
		interval: interval,
		logger:   logger.Named("compensation_worker"),
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting compensation worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)

		case <-w.stopChan:
			w.logger.Info("stopping compensation worker")
			return

		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping compensation worker")
			return
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	rep, err := w.svc.RunOnce(ctx)
	if err != nil {
		w.logger.Error("compensation sweep failed", zap.Error(err))
		return
	}
	if rep != (Report{}) {
		w.logger.Info("compensation sweep finished",
			zap.Int("retried", rep.Retried),
			zap.Int("completed", rep.Completed),
			zap.Int("abandoned", rep.Abandoned),
			zap.Int("stale_failed", rep.StaleFailed),
			zap.Int("stale_compensated", rep.StaleCompensated))
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}
