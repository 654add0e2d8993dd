package wallet

import (
	"context"

	"airswitch/internal/models"

	"go.uber.org/zap"
)

// cached returns the cached wallet, or nil on a miss or cache failure.
func (s *service) cached(ctx context.Context, userID uint) *models.Wallet {
	if s.cache == nil {
		return nil
	}
	w, err := s.cache.GetWallet(ctx, userID)
	if err != nil {
		s.log.Warn("wallet cache read failed", zap.Uint("user_id", userID), zap.Error(err))
		return nil
	}
	return w
}

func (s *service) fill(ctx context.Context, w *models.Wallet) {
	if s.cache == nil {
		return
	}
	if err := s.cache.CacheWallet(ctx, w); err != nil {
		s.log.Warn("wallet cache write failed", zap.Uint("user_id", w.UserID), zap.Error(err))
	}
}

// invalidate drops the cached wallet after a balance change.
func (s *service) invalidate(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
		s.log.Warn("wallet cache invalidation failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}
