package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/pkg/tool"
	"github.com/tableside/billing/pkg/types"
)

type StatisticType string

const (
	// Ledger-derived series
	StatisticTypeDailyEventCount StatisticType = "daily_event_count"
	StatisticTypeDailyRevenue    StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue    StatisticType = "total_revenue"

	// Subscription series
	StatisticTypeDailyActiveSubscriptionCount StatisticType = "daily_active_subscription_count"
	StatisticTypeDailyNewSubscriptionCount    StatisticType = "daily_new_subscription_count"
	StatisticTypeTotalActiveSubscriptionCount StatisticType = "total_active_subscription_count"
)

// Filter fields only some statistic types understand.
type SubscriptionStatisticFilterType string

const (
	SubscriptionStatisticFilterTypePlanID    SubscriptionStatisticFilterType = "plan_id"
	SubscriptionStatisticFilterTypeEventType SubscriptionStatisticFilterType = "event_type"
)

var filterTypes = []SubscriptionStatisticFilterType{
	SubscriptionStatisticFilterTypePlanID,
	SubscriptionStatisticFilterTypeEventType,
}

var validFilters = map[SubscriptionStatisticFilterType][]StatisticType{
	SubscriptionStatisticFilterTypePlanID: {
		StatisticTypeDailyEventCount, StatisticTypeDailyRevenue,
		StatisticTypeDailyActiveSubscriptionCount, StatisticTypeTotalActiveSubscriptionCount,
	},
	SubscriptionStatisticFilterTypeEventType: {StatisticTypeDailyEventCount},
}

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	Filters   []*types.CommonFilter            `json:"filters"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

// GetFilters returns a copy of the request keeping only the filters the
// given statistic type supports.
func (f *SubscriptionStatisticRequest) GetFilters(statisticType StatisticType) *SubscriptionStatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result SubscriptionStatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[SubscriptionStatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return &result
}

// Build composes a WHERE clause from the surviving filters.
func (f *SubscriptionStatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type SubscriptionStatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]SubscriptionStatisticResponseDataItem `json:"data_items"`
}

// Service answers dashboard statistic queries over the subscription tables
// and writes the daily snapshots the time series are built from.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// SaveSubscriptionDailySnapshot persists one user's snapshot for the given
// day. Re-running the snapshot job for a day overwrites in place.
func (s *Service) SaveSubscriptionDailySnapshot(ctx context.Context, subscription *models.Subscription, snapshotDate time.Time) error {
	if subscription == nil {
		return fmt.Errorf("nil subscription")
	}
	snap := &models.SubscriptionDailySnapshot{
		ID:                tool.GenerateUUIDV7(),
		UserID:            subscription.UserID,
		PlanID:            subscription.PlanID,
		Status:            subscription.Status,
		CurrentPeriodEnd:  lo.ToPtr(subscription.CurrentPeriodEnd),
		CancelAtPeriodEnd: subscription.CancelAtPeriodEnd,
		SnapshotDate:      snapshotDate.Format(time.DateOnly),
		SnapshotCreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_id", "status", "current_period_end", "cancel_at_period_end", "snapshot_created_at"}),
	}).Create(snap).Error
}

// SnapshotAll writes a snapshot row for every entitled subscription. Run
// once per day; safe to re-run.
func (s *Service) SnapshotAll(ctx context.Context, snapshotDate time.Time) (int, error) {
	var count int
	var batch []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing, types.SubscriptionStatusPastDue}).
		FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
			for _, sub := range batch {
				if err := s.SaveSubscriptionDailySnapshot(ctx, sub, snapshotDate); err != nil {
					return err
				}
				count++
			}
			return nil
		}).Error
	if err != nil {
		return count, fmt.Errorf("failed to snapshot subscriptions: %w", err)
	}
	return count, nil
}

func (s *Service) getDailyEventCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionEvent{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, event_type as label, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyEventCount)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("event_type").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionEvent{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, currency as label, sum(amount) as value").
		Where("event_type IN ?", []types.SubscriptionEventType{types.SubscriptionEventCheckoutCompleted, types.SubscriptionEventPaymentSucceeded}).
		Where("amount IS NOT NULL").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyRevenue)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRevenue(ctx context.Context, _ *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH paid AS (
    SELECT DATE(created_at) as date, currency as label, SUM(amount) as value
    FROM subscription_event
    WHERE event_type IN ('checkout_completed', 'payment_succeeded')
      AND amount IS NOT NULL
    GROUP BY DATE(created_at), currency
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, d.label as label, SUM(s.value) as value
FROM paid d
LEFT JOIN paid s ON s.date <= d.date AND s.label = d.label
GROUP BY d.date, d.label
ORDER BY d.date DESC, d.label ASC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyActiveSubscriptionCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDailySnapshot{}).TableName()).
		Select("snapshot_date as date, count(*) as value").
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyActiveSubscriptionCount)}}).
		Group("snapshot_date").
		Order("snapshot_date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptionCount(ctx context.Context, _ *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH distinct_dates AS (
    SELECT DISTINCT DATE(created_at) as date FROM subscription ORDER BY date
),
user_id_date AS (
    SELECT user_id, DATE(created_at) as date FROM subscription
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COUNT(DISTINCT s.user_id) as value
FROM distinct_dates d
JOIN user_id_date s ON s.date = d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalActiveSubscriptionCount(ctx context.Context, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeTotalActiveSubscriptionCount)}}).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Where("current_period_end >= ?", time.Now())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest, dataItem *SubscriptionStatisticDataItem) ([]SubscriptionStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyEventCount:
		return s.getDailyEventCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, request)
	case StatisticTypeDailyActiveSubscriptionCount:
		return s.getDailyActiveSubscriptionCount(ctx, request)
	case StatisticTypeDailyNewSubscriptionCount:
		return s.getDailyNewSubscriptionCount(ctx, request)
	case StatisticTypeTotalActiveSubscriptionCount:
		return s.getTotalActiveSubscriptionCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetSubscriptionStatistic runs the requested data items concurrently and
// collects them into one response.
func (s *Service) GetSubscriptionStatistic(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []SubscriptionStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *SubscriptionStatisticDataItem) {
			defer wg.Done()
			// a filter that does not apply to this data item yields an
			// empty series rather than an error
			for _, filter := range request.Filters {
				ft := SubscriptionStatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []SubscriptionStatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getSubscriptionStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []SubscriptionStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]SubscriptionStatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &SubscriptionStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
