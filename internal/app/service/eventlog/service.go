package eventlog

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/pkg/tool"
	"github.com/tableside/billing/pkg/types"
)

// Service owns the append-only subscription event ledger. Append runs inside
// the caller's transaction so an audit failure rolls the state change back;
// no update or delete operations exist.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Append inserts one ledger row using the supplied transaction handle.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, ev *models.SubscriptionEvent) error {
	if ev == nil {
		return fmt.Errorf("nil subscription event")
	}
	if ev.ID == "" {
		ev.ID = tool.GenerateUUIDV7()
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append subscription event: %w", err)
	}
	return nil
}

// HasProviderEvent reports whether a ledger row for the given provider event
// id already exists. Used as the redelivery guard before any writes.
func (s *Service) HasProviderEvent(ctx context.Context, tx *gorm.DB, providerEventID string) (bool, error) {
	if providerEventID == "" {
		return false, nil
	}
	var count int64
	if err := tx.WithContext(ctx).Model(&models.SubscriptionEvent{}).
		Where("provider_event_id = ?", providerEventID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check provider event id: %w", err)
	}
	return count > 0, nil
}

// ListByUser returns a user's ledger entries, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*models.SubscriptionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*models.SubscriptionEvent
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list events for user %s: %w", userID, err)
	}
	return rows, nil
}

type ScanEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanEventsResponse struct {
	Items []*models.SubscriptionEvent `json:"items"`
	Total int64                       `json:"total"`
}

// filtersAnd combines multiple CommonFilter into one clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan implements the paginated, filterable admin listing.
func (s *Service) Scan(ctx context.Context, req *ScanEventsRequest) (*ScanEventsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.SubscriptionEvent{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.SubscriptionEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return &ScanEventsResponse{Items: rows, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
