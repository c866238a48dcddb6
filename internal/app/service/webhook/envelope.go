package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/tableside/billing/pkg/types"
)

// DecodeEnvelope maps a verified provider event onto the tagged union handed
// to the reconciliation engine. Unhandled event types come back with Ignored
// set rather than as errors; they are acknowledged, not processed.
func DecodeEnvelope(event *stripe.Event) (*types.WebhookEnvelope, error) {
	env := &types.WebhookEnvelope{
		EventID:    event.ID,
		Type:       types.WebhookEventType(event.Type),
		ReceivedAt: time.Now(),
	}

	switch env.Type {
	case types.WebhookEventCheckoutSessionCompleted:
		ev, err := decodeCheckoutSession(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.CheckoutCompleted = ev
	case types.WebhookEventInvoicePaymentSucceeded:
		ev, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.InvoicePaid = ev
	case types.WebhookEventInvoicePaymentFailed:
		ev, err := decodeInvoice(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.InvoiceFailed = ev
	case types.WebhookEventSubscriptionUpdated:
		ev, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.SubscriptionUpdated = ev
	case types.WebhookEventSubscriptionDeleted:
		ev, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.SubscriptionDeleted = ev
	case types.WebhookEventTrialWillEnd:
		ev, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		env.TrialWillEnd = ev
	default:
		env.Ignored = true
	}
	return env, nil
}

func decodeCheckoutSession(raw json.RawMessage) (*types.CheckoutCompletedEvent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	ev := &types.CheckoutCompletedEvent{
		SessionID:   session.ID,
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
	}
	if session.Customer != nil {
		ev.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		ev.SubscriptionID = session.Subscription.ID
	}
	if session.Metadata != nil {
		ev.UserID = session.Metadata["user_id"]
		ev.PlanID = session.Metadata["plan_id"]
	}
	return ev, nil
}

func decodeInvoice(raw json.RawMessage) (*types.InvoiceEvent, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}
	ev := &types.InvoiceEvent{
		InvoiceID:  invoice.ID,
		AmountPaid: invoice.AmountPaid,
		AmountDue:  invoice.AmountDue,
		Currency:   string(invoice.Currency),
	}
	if invoice.Customer != nil {
		ev.CustomerID = invoice.Customer.ID
	}
	if invoice.PeriodEnd > 0 {
		t := time.Unix(invoice.PeriodEnd, 0).UTC()
		ev.PeriodEnd = &t
	}
	ev.SubscriptionID = invoiceSubscriptionID(raw)
	return ev, nil
}

// invoiceSubscriptionID digs the subscription id out of the raw payload. Its
// location varies between provider API versions (top-level field in older
// ones, nested under parent.subscription_details in current ones) and it may
// be serialized as a bare id or an expanded object.
func invoiceSubscriptionID(raw json.RawMessage) string {
	var aux struct {
		Subscription json.RawMessage `json:"subscription"`
		Parent       struct {
			SubscriptionDetails struct {
				Subscription json.RawMessage `json:"subscription"`
			} `json:"subscription_details"`
		} `json:"parent"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return ""
	}
	if id := idFromRaw(aux.Subscription); id != "" {
		return id
	}
	return idFromRaw(aux.Parent.SubscriptionDetails.Subscription)
}

func idFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func decodeSubscription(raw json.RawMessage) (*types.SubscriptionStateEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	ev := &types.SubscriptionStateEvent{
		SubscriptionID:    sub.ID,
		Status:            types.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			ev.PriceID = item.Price.ID
		}
		ev.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		ev.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Metadata != nil {
		ev.PlanID = sub.Metadata["plan_id"]
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		ev.CanceledAt = &t
	}
	if sub.TrialStart > 0 {
		t := time.Unix(sub.TrialStart, 0).UTC()
		ev.TrialStart = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		ev.TrialEnd = &t
	}
	return ev, nil
}
