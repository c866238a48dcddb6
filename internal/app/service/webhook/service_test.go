package webhook

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/internal/app/service/webhooklog"
	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/types"
)

const testWebhookSecret = "whsec_test_secret"

type stubEngine struct {
	checkoutCalls int
	updatedCalls  int
	outcome       reconcile.Outcome
	err           error
}

func (s *stubEngine) ApplyCheckoutCompleted(_ context.Context, _ string, _ *types.CheckoutCompletedEvent) (reconcile.Outcome, error) {
	s.checkoutCalls++
	return s.outcome, s.err
}

func (s *stubEngine) ApplyInvoicePaymentSucceeded(_ context.Context, _ string, _ *types.InvoiceEvent) (reconcile.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) ApplyInvoicePaymentFailed(_ context.Context, _ string, _ *types.InvoiceEvent) (reconcile.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) ApplySubscriptionUpdated(_ context.Context, _ string, _ *types.SubscriptionStateEvent) (reconcile.Outcome, error) {
	s.updatedCalls++
	return s.outcome, s.err
}

func (s *stubEngine) ApplySubscriptionDeleted(_ context.Context, _ string, _ *types.SubscriptionStateEvent) (reconcile.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) ApplyTrialWillEnd(_ context.Context, _ string, _ *types.SubscriptionStateEvent) (reconcile.Outcome, error) {
	return s.outcome, s.err
}

func newTestService(engine Engine) *Service {
	log := zap.NewNop().Sugar()
	cfg := &cfgpkg.Config{}
	cfg.Stripe.WebhookSecret = testWebhookSecret
	return &Service{
		cfg:    cfg,
		log:    log,
		engine: engine,
		logs:   webhooklog.NewService(nil, log),
	}
}

func signPayload(payload []byte) string {
	now := time.Now()
	sig := stripewebhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func eventPayload(eventType string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"api_version": "2025-03-31.basil",
		"type": %q,
		"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "active"}}
	}`, eventType))
}

func TestProcess_RejectsInvalidSignature(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeApplied}
	svc := newTestService(engine)

	payload := eventPayload("customer.subscription.updated")
	err := svc.Process(context.Background(), payload, "t=123,v1=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Zero(t, engine.updatedCalls)
}

func TestProcess_RejectsTamperedPayload(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeApplied}
	svc := newTestService(engine)

	payload := eventPayload("customer.subscription.updated")
	header := signPayload(payload)
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = ' '

	err := svc.Process(context.Background(), tampered, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Zero(t, engine.updatedCalls)
}

func TestProcess_DispatchesVerifiedEvent(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeApplied}
	svc := newTestService(engine)

	payload := eventPayload("customer.subscription.updated")
	err := svc.Process(context.Background(), payload, signPayload(payload))
	require.NoError(t, err)
	require.Equal(t, 1, engine.updatedCalls)
}

func TestProcess_AcknowledgesIgnoredEventTypes(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeApplied}
	svc := newTestService(engine)

	payload := eventPayload("customer.created")
	err := svc.Process(context.Background(), payload, signPayload(payload))
	require.NoError(t, err)
	require.Zero(t, engine.updatedCalls)
	require.Zero(t, engine.checkoutCalls)
}

func TestProcess_AcknowledgesDuplicates(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeDuplicate}
	svc := newTestService(engine)

	payload := eventPayload("customer.subscription.updated")
	err := svc.Process(context.Background(), payload, signPayload(payload))
	require.NoError(t, err)
	require.Equal(t, 1, engine.updatedCalls)
}

func TestProcess_PropagatesEngineErrors(t *testing.T) {
	engineErr := errors.New("database down")
	engine := &stubEngine{err: engineErr}
	svc := newTestService(engine)

	payload := eventPayload("customer.subscription.updated")
	err := svc.Process(context.Background(), payload, signPayload(payload))
	require.ErrorIs(t, err, engineErr)
}
