package types

import "time"

// WebhookEventType is the provider-side event type string.
type WebhookEventType string

const (
	WebhookEventCheckoutSessionCompleted WebhookEventType = "checkout.session.completed"
	WebhookEventInvoicePaymentSucceeded  WebhookEventType = "invoice.payment_succeeded"
	WebhookEventInvoicePaymentFailed     WebhookEventType = "invoice.payment_failed"
	WebhookEventSubscriptionUpdated      WebhookEventType = "customer.subscription.updated"
	WebhookEventSubscriptionDeleted      WebhookEventType = "customer.subscription.deleted"
	WebhookEventTrialWillEnd             WebhookEventType = "customer.subscription.trial_will_end"
)

// CheckoutCompletedEvent carries the fields the engine needs from a completed
// checkout session. UserID and PlanID come from session metadata set when the
// checkout session was created.
type CheckoutCompletedEvent struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	UserID         string
	PlanID         string
	AmountTotal    int64
	Currency       string
}

// SubscriptionStateEvent is the decoded shape shared by subscription
// lifecycle events (updated, deleted, trial_will_end).
type SubscriptionStateEvent struct {
	SubscriptionID    string
	CustomerID        string
	Status            SubscriptionStatus
	PriceID           string
	PlanID            string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
}

// InvoiceEvent is the decoded shape of invoice payment events. PeriodEnd is
// the billing period covered by the invoice when the payload carries one.
type InvoiceEvent struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	AmountDue      int64
	Currency       string
	PeriodEnd      *time.Time
}

// WebhookEnvelope is the tagged union handed from the ingress layer to the
// reconciliation engine. Exactly one payload pointer is set for handled event
// types; Ignored marks event types this service deliberately acknowledges
// without processing.
type WebhookEnvelope struct {
	EventID    string
	Type       WebhookEventType
	ReceivedAt time.Time

	CheckoutCompleted   *CheckoutCompletedEvent
	InvoicePaid         *InvoiceEvent
	InvoiceFailed       *InvoiceEvent
	SubscriptionUpdated *SubscriptionStateEvent
	SubscriptionDeleted *SubscriptionStateEvent
	TrialWillEnd        *SubscriptionStateEvent

	Ignored bool
}
