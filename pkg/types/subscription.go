package types

import "time"

// SubscriptionStatus mirrors the provider's subscription status vocabulary.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
)

// Entitled reports whether a status grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// SubscriptionEventType names an entry in the subscription event ledger.
type SubscriptionEventType string

const (
	SubscriptionEventCheckoutCompleted    SubscriptionEventType = "checkout_completed"
	SubscriptionEventPaymentSucceeded     SubscriptionEventType = "payment_succeeded"
	SubscriptionEventPaymentFailed        SubscriptionEventType = "payment_failed"
	SubscriptionEventSubscriptionUpdated  SubscriptionEventType = "subscription_updated"
	SubscriptionEventSubscriptionCanceled SubscriptionEventType = "subscription_canceled"
	SubscriptionEventTrialWillEnd         SubscriptionEventType = "trial_will_end"
	SubscriptionEventCancelRequested      SubscriptionEventType = "cancel_requested"
	SubscriptionEventReactivated          SubscriptionEventType = "reactivated"
)

// SubscriptionInfo is the user-facing view of the current subscription.
type SubscriptionInfo struct {
	Status             SubscriptionStatus `json:"status"`
	PlanID             string             `json:"plan_id,omitempty"`
	PlanName           string             `json:"plan_name,omitempty"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
}
