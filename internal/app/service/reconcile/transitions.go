package reconcile

import (
	"time"

	"github.com/tableside/billing/pkg/types"
)

// NextStatusOnPaymentSucceeded maps a successful invoice payment onto the
// local status: a past_due subscription recovers to active, everything else
// is left unchanged (the subscription-updated event is the authority for
// other transitions).
func NextStatusOnPaymentSucceeded(current types.SubscriptionStatus) types.SubscriptionStatus {
	if current == types.SubscriptionStatusPastDue {
		return types.SubscriptionStatusActive
	}
	return current
}

// NextStatusOnPaymentFailed flips to past_due only when the provider itself
// has marked the subscription past_due. A single retryable decline must not
// flap the local status; the provider retries internally first.
func NextStatusOnPaymentFailed(current, providerStatus types.SubscriptionStatus) types.SubscriptionStatus {
	if providerStatus == types.SubscriptionStatusPastDue {
		return types.SubscriptionStatusPastDue
	}
	return current
}

// FallbackPeriod is the degraded-mode billing period used when the provider
// subscription cannot be fetched after checkout: one month from now.
func FallbackPeriod(now time.Time) (start, end time.Time) {
	return now, now.AddDate(0, 1, 0)
}
