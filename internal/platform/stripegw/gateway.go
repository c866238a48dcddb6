package stripegw

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/types"
)

// callTimeout bounds every provider API call; the local DB transaction is
// never held open across these calls.
const callTimeout = 15 * time.Second

// ProviderSubscription is the provider-neutral view of a Stripe subscription
// handed to the reconciliation engine.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Status            types.SubscriptionStatus
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	Metadata          map[string]string
}

type CheckoutSessionRequest struct {
	CustomerID    string // empty when the user has never checked out
	CustomerEmail string
	PriceID       string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway wraps the provider API behind an injected interface so the engine
// and handlers can be tested with doubles.
type Gateway interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*ProviderSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error)
	CancelNow(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
}

type stripeGateway struct {
	client *stripe.Client
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) Gateway {
	return &stripeGateway{
		client: stripe.NewClient(cfg.Stripe.SecretKey, nil),
		cfg:    cfg,
		log:    log,
	}
}

func (g *stripeGateway) FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *stripeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(priceID)},
		},
		Metadata: metadata,
	}
	sub, err := g.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription for customer %s: %w", customerID, err)
	}
	g.log.Infow("stripe_subscription_created", "subscription_id", sub.ID, "customer_id", customerID)
	return fromStripeSubscription(sub), nil
}

func (g *stripeGateway) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error) {
	ctx, cancelFn := context.WithTimeout(ctx, callTimeout)
	defer cancelFn()

	params := &stripe.SubscriptionUpdateParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	sub, err := g.client.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *stripeGateway) CancelNow(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	sub, err := g.client.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription %s: %w", subscriptionID, err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(g.cfg.Stripe.SuccessURL),
		CancelURL:  stripe.String(g.cfg.Stripe.CancelURL),
		Metadata:   req.Metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	session, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	g.log.Infow("stripe_checkout_session_created", "session_id", session.ID)
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// fromStripeSubscription maps the SDK object to the provider-neutral view.
// The billing period lives on the subscription items in current API versions.
func fromStripeSubscription(sub *stripe.Subscription) *ProviderSubscription {
	res := &ProviderSubscription{
		ID:                sub.ID,
		Status:            types.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		res.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			res.PriceID = item.Price.ID
		}
		res.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		res.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		res.CanceledAt = &t
	}
	if sub.TrialStart > 0 {
		t := time.Unix(sub.TrialStart, 0).UTC()
		res.TrialStart = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		res.TrialEnd = &t
	}
	return res
}

var Module = fx.Options(
	fx.Provide(New),
)
