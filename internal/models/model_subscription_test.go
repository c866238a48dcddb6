package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/pkg/types"
)

func TestSubscriptionEntitled(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name string
		sub  *Subscription
		want bool
	}{
		{"active within period", &Subscription{Status: types.SubscriptionStatusActive, CurrentPeriodEnd: future}, true},
		{"trialing within period", &Subscription{Status: types.SubscriptionStatusTrialing, CurrentPeriodEnd: future}, true},
		{"active pending cancel stays entitled", &Subscription{Status: types.SubscriptionStatusActive, CancelAtPeriodEnd: true, CurrentPeriodEnd: future}, true},
		{"active but period lapsed", &Subscription{Status: types.SubscriptionStatusActive, CurrentPeriodEnd: past}, false},
		{"past_due not entitled", &Subscription{Status: types.SubscriptionStatusPastDue, CurrentPeriodEnd: future}, false},
		{"canceled not entitled", &Subscription{Status: types.SubscriptionStatusCanceled, CurrentPeriodEnd: future}, false},
		{"nil subscription", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.sub.Entitled(now))
		})
	}
}
