package esim

import (
	"context"
	"errors"
	"strings"

	apperrors "airswitch/internal/errors"
	"airswitch/internal/models"
	"airswitch/internal/repositories"
	"airswitch/internal/services/provisioning"

	"go.uber.org/zap"
)

// Service manages eSIMs after purchase.
type Service struct {
	store     repositories.Store
	provision provisioning.Gateway
	catalog   *Catalog
	log       *zap.Logger
}

func NewService(store repositories.Store, provision provisioning.Gateway, catalog *Catalog, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{store: store, provision: provision, catalog: catalog, log: log.Named("esim")}
}

func (s *Service) Plans() []Plan {
	return s.catalog.List()
}

// View is an eSIM together with the plan it was bought for.
type View struct {
	models.ESim
	PlanID string `json:"plan_id,omitempty"`
}

func (s *Service) ListForUser(ctx context.Context, userID uint) ([]View, error) {
	esims, err := s.store.ESims().ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	orders, err := s.store.Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}

	plans := make(map[uint]string, len(orders))
	for _, o := range orders {
		if o.ESimID != nil {
			plans[*o.ESimID] = o.PlanID
		}
	}

	views := make([]View, 0, len(esims))
	for _, e := range esims {
		views = append(views, View{ESim: e, PlanID: plans[e.ID]})
	}
	return views, nil
}

func (s *Service) Orders(ctx context.Context, userID uint) ([]models.EsimOrder, error) {
	orders, err := s.store.Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	return orders, nil
}

func (s *Service) Activate(ctx context.Context, userID, esimID uint) (*models.ESim, error) {
	return s.transition(ctx, userID, esimID, models.ESimStatusActive, s.provision.Activate)
}

func (s *Service) Deactivate(ctx context.Context, userID, esimID uint) (*models.ESim, error) {
	return s.transition(ctx, userID, esimID, models.ESimStatusInactive, s.provision.Deactivate)
}

func (s *Service) transition(ctx context.Context, userID, esimID uint, status string,
	call func(context.Context, string) error) (*models.ESim, error) {
	esim, err := s.owned(ctx, userID, esimID)
	if err != nil {
		return nil, err
	}
	if err := call(ctx, esim.ExternalID); err != nil {
		s.log.Warn("provider transition failed",
			zap.Uint("esim_id", esimID),
			zap.String("status", status),
			zap.Error(err))
		return nil, err
	}
	if err := s.store.ESims().UpdateStatus(ctx, esim.ID, status); err != nil {
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	esim.Status = status
	return esim, nil
}

func (s *Service) Usage(ctx context.Context, userID, esimID uint) (models.JSON, error) {
	esim, err := s.owned(ctx, userID, esimID)
	if err != nil {
		return nil, err
	}
	return s.provision.Usage(ctx, esim.ExternalID)
}

// MirrorStatus applies a provider-reported SIM status to the local record.
// It reports false when the SIM is unknown or the status has no local
// equivalent.
func (s *Service) MirrorStatus(ctx context.Context, externalID, providerStatus string) (bool, error) {
	status, ok := localStatus(providerStatus)
	if !ok {
		return false, nil
	}
	esim, err := s.store.ESims().GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repositories.ErrESimNotFound) {
			return false, nil
		}
		return false, err
	}
	if esim.Status == status {
		return true, nil
	}
	if err := s.store.ESims().UpdateStatus(ctx, esim.ID, status); err != nil {
		return false, err
	}
	return true, nil
}

func localStatus(providerStatus string) (string, bool) {
	switch strings.ToLower(providerStatus) {
	case "enabled", "active":
		return models.ESimStatusActive, true
	case "disabled", "standby", "inactive":
		return models.ESimStatusInactive, true
	case "expired", "data_limit_exceeded":
		return models.ESimStatusExpired, true
	}
	return "", false
}

func (s *Service) owned(ctx context.Context, userID, esimID uint) (*models.ESim, error) {
	esim, err := s.store.ESims().GetByID(ctx, esimID)
	if err != nil {
		if errors.Is(err, repositories.ErrESimNotFound) {
			return nil, apperrors.ErrESimNotFound
		}
		return nil, apperrors.ErrInternal.Wrap(err)
	}
	if esim.UserID != userID {
		return nil, apperrors.ErrForbidden
	}
	return esim, nil
}
