package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/internal/app/service/webhooklog"
	"github.com/tableside/billing/internal/models"
	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/logctx"
	"github.com/tableside/billing/pkg/metrics"
	"github.com/tableside/billing/pkg/types"
)

const provider = "stripe"

// ErrInvalidSignature is returned when the delivery fails signature
// verification; the HTTP layer maps it to a 400 so the provider stops
// retrying a forged or corrupted payload.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Engine is the slice of the reconciliation service the ingress needs.
type Engine interface {
	ApplyCheckoutCompleted(ctx context.Context, eventID string, ev *types.CheckoutCompletedEvent) (reconcile.Outcome, error)
	ApplyInvoicePaymentSucceeded(ctx context.Context, eventID string, ev *types.InvoiceEvent) (reconcile.Outcome, error)
	ApplyInvoicePaymentFailed(ctx context.Context, eventID string, ev *types.InvoiceEvent) (reconcile.Outcome, error)
	ApplySubscriptionUpdated(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (reconcile.Outcome, error)
	ApplySubscriptionDeleted(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (reconcile.Outcome, error)
	ApplyTrialWillEnd(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (reconcile.Outcome, error)
}

// Service is the webhook ingress: it verifies deliveries, decodes them and
// hands them to the reconciliation engine, auditing every step.
type Service struct {
	cfg    *cfgpkg.Config
	log    *zap.SugaredLogger
	engine Engine
	logs   *webhooklog.Service
}

func NewService(cfg *cfgpkg.Config, log *zap.SugaredLogger, engine *reconcile.Service, logs *webhooklog.Service) *Service {
	return &Service{cfg: cfg, log: log, engine: engine, logs: logs}
}

// Process verifies and applies one delivery. An ErrInvalidSignature return
// means reject with 400; any other error means the delivery should be
// retried by the provider (500). A nil return acknowledges it (200),
// including duplicates and event types this service ignores.
func (s *Service) Process(ctx context.Context, payload []byte, sigHeader string) error {
	log := logctx.FromCtx(ctx, s.log)

	event, err := stripewebhook.ConstructEventWithOptions(payload, sigHeader, s.cfg.Stripe.WebhookSecret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warnw("webhook_signature_rejected", "err", err)
		return ErrInvalidSignature
	}

	s.logs.Save(ctx, &models.WebhookLog{
		Provider:  provider,
		EventID:   event.ID,
		EventType: string(event.Type),
		TraceID:   logctx.TraceIDFromCtx(ctx),
		Data:      datatypes.JSON(payload),
		Status:    models.WebhookLogStatusReceived,
	})

	env, err := DecodeEnvelope(&event)
	if err != nil {
		s.audit(ctx, &event, models.WebhookLogStatusHandleFailed, err.Error())
		return fmt.Errorf("failed to decode webhook event %s: %w", event.ID, err)
	}
	if env.Ignored {
		log.Debugw("webhook_event_ignored", "event_id", env.EventID, "event_type", env.Type)
		s.audit(ctx, &event, models.WebhookLogStatusIgnored, "")
		metrics.IncWebhookEvent(provider, string(env.Type), "ignored")
		return nil
	}

	outcome, err := s.dispatch(ctx, env)
	if err != nil {
		log.Errorw("webhook_event_failed", "event_id", env.EventID, "event_type", env.Type, "err", err)
		s.audit(ctx, &event, models.WebhookLogStatusHandleFailed, err.Error())
		metrics.IncWebhookEvent(provider, string(env.Type), "failed")
		return err
	}

	status := models.WebhookLogStatusHandled
	if outcome == reconcile.OutcomeDuplicate {
		status = models.WebhookLogStatusDuplicate
	}
	log.Infow("webhook_event_processed", "event_id", env.EventID, "event_type", env.Type, "outcome", outcome)
	s.audit(ctx, &event, status, string(outcome))
	metrics.IncWebhookEvent(provider, string(env.Type), string(outcome))
	return nil
}

func (s *Service) dispatch(ctx context.Context, env *types.WebhookEnvelope) (reconcile.Outcome, error) {
	switch {
	case env.CheckoutCompleted != nil:
		return s.engine.ApplyCheckoutCompleted(ctx, env.EventID, env.CheckoutCompleted)
	case env.InvoicePaid != nil:
		return s.engine.ApplyInvoicePaymentSucceeded(ctx, env.EventID, env.InvoicePaid)
	case env.InvoiceFailed != nil:
		return s.engine.ApplyInvoicePaymentFailed(ctx, env.EventID, env.InvoiceFailed)
	case env.SubscriptionUpdated != nil:
		return s.engine.ApplySubscriptionUpdated(ctx, env.EventID, env.SubscriptionUpdated)
	case env.SubscriptionDeleted != nil:
		return s.engine.ApplySubscriptionDeleted(ctx, env.EventID, env.SubscriptionDeleted)
	case env.TrialWillEnd != nil:
		return s.engine.ApplyTrialWillEnd(ctx, env.EventID, env.TrialWillEnd)
	default:
		return reconcile.OutcomeNoOp, nil
	}
}

func (s *Service) audit(ctx context.Context, event *stripe.Event, status models.WebhookLogStatus, detail string) {
	row := &models.WebhookLog{
		Provider:  provider,
		EventID:   event.ID,
		EventType: string(event.Type),
		TraceID:   logctx.TraceIDFromCtx(ctx),
		Status:    status,
	}
	if detail != "" {
		result := datatypes.JSON([]byte(fmt.Sprintf("{%q:%q}", "detail", detail)))
		row.Result = &result
	}
	s.logs.Save(ctx, row)
}
