package plan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tableside/billing/internal/models"
)

var ErrPlanNotFound = errors.New("subscription plan not found")

// Service is the read side of the plan catalog. Plan CRUD is owned by the
// admin back-office; the reconciliation engine only ever resolves plans here.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return &p, nil
}

// GetByStripePriceID resolves the catalog entry by the provider's price id.
func (s *Service) GetByStripePriceID(ctx context.Context, priceID string) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to load plan by price %s: %w", priceID, err)
	}
	return &p, nil
}

// List returns active plans for the storefront.
func (s *Service) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	var plans []*models.SubscriptionPlan
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("price asc").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
