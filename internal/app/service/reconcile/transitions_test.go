package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/pkg/types"
)

func TestNextStatusOnPaymentSucceeded(t *testing.T) {
	cases := []struct {
		name    string
		current types.SubscriptionStatus
		want    types.SubscriptionStatus
	}{
		{"past_due recovers to active", types.SubscriptionStatusPastDue, types.SubscriptionStatusActive},
		{"active stays active", types.SubscriptionStatusActive, types.SubscriptionStatusActive},
		{"trialing stays trialing", types.SubscriptionStatusTrialing, types.SubscriptionStatusTrialing},
		{"canceled stays canceled", types.SubscriptionStatusCanceled, types.SubscriptionStatusCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NextStatusOnPaymentSucceeded(tc.current))
		})
	}
}

func TestNextStatusOnPaymentFailed(t *testing.T) {
	cases := []struct {
		name           string
		current        types.SubscriptionStatus
		providerStatus types.SubscriptionStatus
		want           types.SubscriptionStatus
	}{
		{"provider marked past_due", types.SubscriptionStatusActive, types.SubscriptionStatusPastDue, types.SubscriptionStatusPastDue},
		{"single retryable decline does not flap", types.SubscriptionStatusActive, types.SubscriptionStatusActive, types.SubscriptionStatusActive},
		{"already past_due stays past_due", types.SubscriptionStatusPastDue, types.SubscriptionStatusPastDue, types.SubscriptionStatusPastDue},
		{"provider canceled leaves local untouched", types.SubscriptionStatusActive, types.SubscriptionStatusCanceled, types.SubscriptionStatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NextStatusOnPaymentFailed(tc.current, tc.providerStatus))
		})
	}
}

func TestFallbackPeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	start, end := FallbackPeriod(now)
	require.Equal(t, now, start)
	require.Equal(t, now.AddDate(0, 1, 0), end)
	require.True(t, end.After(start))
}
