package statistics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/pkg/types"
)

func TestGetFilters_KeepsOnlyApplicable(t *testing.T) {
	req := &SubscriptionStatisticRequest{
		Filters: []*types.CommonFilter{
			{Field: "event_type", Operator: types.CommonFilterOperatorEq, Values: []any{"payment_succeeded"}},
			{Field: "plan_id", Operator: types.CommonFilterOperatorEq, Values: []any{"pro_monthly"}},
			{Field: "created_at", Operator: types.CommonFilterOperatorDateRange, Values: []any{"2026-01-01", "2026-02-01"}},
		},
	}

	// daily_revenue does not understand event_type
	got := req.GetFilters(StatisticTypeDailyRevenue)
	require.Len(t, got.Filters, 2)
	require.Equal(t, "plan_id", got.Filters[0].Field)
	require.Equal(t, "created_at", got.Filters[1].Field)

	// daily_event_count keeps all three
	got = req.GetFilters(StatisticTypeDailyEventCount)
	require.Len(t, got.Filters, 3)
}

func TestGetFilters_EmptyRequestPassesThrough(t *testing.T) {
	req := &SubscriptionStatisticRequest{}
	require.Same(t, req, req.GetFilters(StatisticTypeDailyRevenue))
}
