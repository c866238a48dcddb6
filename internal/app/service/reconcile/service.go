package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/plan"
	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/internal/platform/cache"
	"github.com/tableside/billing/internal/platform/stripegw"
	"github.com/tableside/billing/pkg/logctx"
	"github.com/tableside/billing/pkg/tool"
	"github.com/tableside/billing/pkg/types"
)

// Outcome classifies how a webhook event was absorbed.
type Outcome string

const (
	// OutcomeApplied means local state changed and a ledger row was written.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoOp means the event was acknowledged without any writes, for
	// example because no local anchor entity exists for it.
	OutcomeNoOp Outcome = "noop"
	// OutcomeDuplicate means a ledger row for this provider event id already
	// exists; redelivery, nothing written.
	OutcomeDuplicate Outcome = "duplicate"
)

// Service is the reconciliation engine: it maps provider-side subscription
// and invoice state onto the local user/subscription tables. Provider API
// calls happen before the database transaction opens; all local writes for
// one event (subscription upsert, user mirror, ledger append) share a single
// transaction.
type Service struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	plans   *plan.Service
	gateway stripegw.Gateway
	events  *eventlog.Service
	cache   *cache.Cache
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, plans *plan.Service, gateway stripegw.Gateway, events *eventlog.Service, c *cache.Cache) *Service {
	return &Service{db: db, log: log, plans: plans, gateway: gateway, events: events, cache: c}
}

// ApplyCheckoutCompleted handles the first successful paid checkout: it binds
// the provider customer id to the user, mirrors the new provider subscription
// locally and writes the checkout_completed ledger entry.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, eventID string, ev *types.CheckoutCompletedEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)

	user, err := s.resolveUser(ctx, ev.UserID, ev.CustomerID)
	if err != nil {
		return OutcomeNoOp, err
	}
	if user == nil {
		log.Warnw("checkout_completed_user_unresolved", "session_id", ev.SessionID, "customer_id", ev.CustomerID)
		return OutcomeNoOp, nil
	}
	if ev.SubscriptionID == "" {
		// one-time payment checkout, nothing to mirror
		log.Infow("checkout_completed_no_subscription", "session_id", ev.SessionID)
		return OutcomeNoOp, nil
	}

	// Authoritative state comes from the provider; the degraded path keeps
	// the customer entitled for one month until the next webhook corrects it.
	now := time.Now()
	providerSub, err := s.gateway.FetchSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		log.Warnw("checkout_completed_fetch_degraded", "subscription_id", ev.SubscriptionID, "err", err)
		start, end := FallbackPeriod(now)
		providerSub = &stripegw.ProviderSubscription{
			ID:          ev.SubscriptionID,
			CustomerID:  ev.CustomerID,
			Status:      types.SubscriptionStatusActive,
			PeriodStart: start,
			PeriodEnd:   end,
		}
	}

	p, err := s.resolvePlan(ctx, ev.PlanID, providerSub.PriceID)
	if err != nil {
		return OutcomeNoOp, err
	}
	if p == nil {
		log.Errorw("checkout_completed_plan_unresolved", "plan_id", ev.PlanID, "price_id", providerSub.PriceID)
		return OutcomeNoOp, nil
	}

	outcome := OutcomeApplied
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		target := subscriptionFromProvider(user.ID, p.ID, providerSub)
		target.Extra = mustJSON(map[string]string{"checkout_session_id": ev.SessionID})
		if _, err := s.upsertSubscription(ctx, tx, target); err != nil {
			return err
		}
		if err := s.mirrorUser(ctx, tx, user.ID, target.Status, p.ID, lo.ToPtr(ev.CustomerID)); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               user.ID,
			EventType:            types.SubscriptionEventCheckoutCompleted,
			PlanID:               lo.ToPtr(p.ID),
			Status:               target.Status,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Amount:               lo.ToPtr(ev.AmountTotal),
			Currency:             ev.Currency,
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply checkout completed: %w", err)
	}
	if outcome == OutcomeApplied {
		s.cache.Invalidate(ctx, user.ID)
	}
	return outcome, nil
}

// ApplyInvoicePaymentSucceeded extends the current period on recurring
// billing success and recovers a past_due subscription to active. It never
// creates a subscription row; creation belongs to the checkout path.
func (s *Service) ApplyInvoicePaymentSucceeded(ctx context.Context, eventID string, ev *types.InvoiceEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)
	if ev.SubscriptionID == "" {
		return OutcomeNoOp, nil
	}

	// Resolve the authoritative period end before opening the transaction.
	periodEnd := ev.PeriodEnd
	var periodStart *time.Time
	if providerSub, err := s.gateway.FetchSubscription(ctx, ev.SubscriptionID); err == nil {
		periodEnd = lo.ToPtr(providerSub.PeriodEnd)
		periodStart = lo.ToPtr(providerSub.PeriodStart)
	} else {
		log.Warnw("payment_succeeded_fetch_failed", "subscription_id", ev.SubscriptionID, "err", err)
	}

	outcome := OutcomeApplied
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		sub, err := s.findByExternalID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			log.Warnw("payment_succeeded_no_local_subscription", "subscription_id", ev.SubscriptionID)
			outcome = OutcomeNoOp
			return nil
		}
		userID = sub.UserID

		sub.Status = NextStatusOnPaymentSucceeded(sub.Status)
		if periodStart != nil {
			sub.CurrentPeriodStart = *periodStart
		}
		if periodEnd != nil {
			sub.CurrentPeriodEnd = *periodEnd
		}
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := s.mirrorUser(ctx, tx, sub.UserID, sub.Status, sub.PlanID, nil); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               sub.UserID,
			EventType:            types.SubscriptionEventPaymentSucceeded,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               sub.Status,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Amount:               lo.ToPtr(ev.AmountPaid),
			Currency:             ev.Currency,
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply payment succeeded: %w", err)
	}
	if outcome == OutcomeApplied && userID != "" {
		s.cache.Invalidate(ctx, userID)
	}
	return outcome, nil
}

// ApplyInvoicePaymentFailed records the failure and marks the subscription
// past_due only when the provider has already done so itself.
func (s *Service) ApplyInvoicePaymentFailed(ctx context.Context, eventID string, ev *types.InvoiceEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)
	if ev.SubscriptionID == "" {
		return OutcomeNoOp, nil
	}

	// The provider's own view decides whether this failure is terminal
	// enough to surface; a fetch error here is retryable infrastructure.
	providerSub, err := s.gateway.FetchSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to fetch provider subscription: %w", err)
	}

	outcome := OutcomeApplied
	var userID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		sub, err := s.findByExternalID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			log.Warnw("payment_failed_no_local_subscription", "subscription_id", ev.SubscriptionID)
			outcome = OutcomeNoOp
			return nil
		}
		userID = sub.UserID

		next := NextStatusOnPaymentFailed(sub.Status, providerSub.Status)
		if next != sub.Status {
			sub.Status = next
			if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
				return fmt.Errorf("failed to save subscription: %w", err)
			}
			if err := s.mirrorUser(ctx, tx, sub.UserID, sub.Status, sub.PlanID, nil); err != nil {
				return err
			}
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               sub.UserID,
			EventType:            types.SubscriptionEventPaymentFailed,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               next,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Amount:               lo.ToPtr(ev.AmountDue),
			Currency:             ev.Currency,
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply payment failed: %w", err)
	}
	if outcome == OutcomeApplied && userID != "" {
		s.cache.Invalidate(ctx, userID)
	}
	return outcome, nil
}

// ApplySubscriptionUpdated is the general-purpose sync: status, period, plan
// and cancellation flags are taken from the event. An update arriving before
// the corresponding creation falls through to the creation path.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)

	p, err := s.resolvePlan(ctx, ev.PlanID, ev.PriceID)
	if err != nil {
		return OutcomeNoOp, err
	}
	if p == nil {
		log.Errorw("subscription_updated_plan_unresolved", "plan_id", ev.PlanID, "price_id", ev.PriceID)
		return OutcomeNoOp, nil
	}

	outcome := OutcomeApplied
	var userID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		// Anchor on the local mirror first, then on the customer binding
		// (update-before-create tolerance).
		sub, err := s.findByExternalID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if sub != nil {
			userID = sub.UserID
		} else {
			user, err := s.resolveUserTx(ctx, tx, "", ev.CustomerID)
			if err != nil {
				return err
			}
			if user == nil {
				log.Warnw("subscription_updated_unresolved", "subscription_id", ev.SubscriptionID, "customer_id", ev.CustomerID)
				outcome = OutcomeNoOp
				return nil
			}
			userID = user.ID
		}

		target := &models.Subscription{
			UserID:               userID,
			PlanID:               p.ID,
			StripeSubscriptionID: ev.SubscriptionID,
			Status:               ev.Status,
			CurrentPeriodStart:   ev.PeriodStart,
			CurrentPeriodEnd:     ev.PeriodEnd,
			CancelAtPeriodEnd:    ev.CancelAtPeriodEnd,
			CanceledAt:           ev.CanceledAt,
			TrialStart:           ev.TrialStart,
			TrialEnd:             ev.TrialEnd,
		}
		if _, err := s.upsertSubscription(ctx, tx, target); err != nil {
			return err
		}
		if err := s.mirrorUser(ctx, tx, userID, ev.Status, p.ID, nil); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               userID,
			EventType:            types.SubscriptionEventSubscriptionUpdated,
			PlanID:               lo.ToPtr(p.ID),
			Status:               ev.Status,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply subscription updated: %w", err)
	}
	if outcome == OutcomeApplied && userID != "" {
		s.cache.Invalidate(ctx, userID)
	}
	return outcome, nil
}

// ApplySubscriptionDeleted flips the mirror to canceled and stamps
// canceled_at. The row is kept.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)

	outcome := OutcomeApplied
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		sub, err := s.findByExternalID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			log.Warnw("subscription_deleted_no_local_subscription", "subscription_id", ev.SubscriptionID)
			outcome = OutcomeNoOp
			return nil
		}
		userID = sub.UserID

		sub.Status = types.SubscriptionStatusCanceled
		sub.CanceledAt = ev.CanceledAt
		if sub.CanceledAt == nil {
			sub.CanceledAt = lo.ToPtr(time.Now())
		}
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := s.mirrorUser(ctx, tx, sub.UserID, sub.Status, sub.PlanID, nil); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               sub.UserID,
			EventType:            types.SubscriptionEventSubscriptionCanceled,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               sub.Status,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply subscription deleted: %w", err)
	}
	if outcome == OutcomeApplied && userID != "" {
		s.cache.Invalidate(ctx, userID)
	}
	return outcome, nil
}

// ApplyTrialWillEnd is notification-only: one ledger entry, no state change.
func (s *Service) ApplyTrialWillEnd(ctx context.Context, eventID string, ev *types.SubscriptionStateEvent) (Outcome, error) {
	log := logctx.FromCtx(ctx, s.log)

	outcome := OutcomeApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := s.events.HasProviderEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if dup {
			outcome = OutcomeDuplicate
			return nil
		}

		sub, err := s.findByExternalID(ctx, tx, ev.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			log.Warnw("trial_will_end_no_local_subscription", "subscription_id", ev.SubscriptionID)
			outcome = OutcomeNoOp
			return nil
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               sub.UserID,
			EventType:            types.SubscriptionEventTrialWillEnd,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               sub.Status,
			StripeSubscriptionID: ev.SubscriptionID,
			ProviderEventID:      lo.ToPtr(eventID),
			Payload:              mustJSON(ev),
		})
	})
	if err != nil {
		return OutcomeNoOp, fmt.Errorf("failed to apply trial will end: %w", err)
	}
	return outcome, nil
}

// Lookup helpers.

func (s *Service) findByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).Where("stripe_subscription_id = ?", externalID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load subscription by external id: %w", err)
	}
	return &sub, nil
}

// resolveUser locates the anchor user by explicit user id first, then by the
// provider customer binding. A nil result means the event is outside this
// service's concern.
func (s *Service) resolveUser(ctx context.Context, userID, customerID string) (*models.User, error) {
	return s.resolveUserTx(ctx, s.db, userID, customerID)
}

func (s *Service) resolveUserTx(ctx context.Context, tx *gorm.DB, userID, customerID string) (*models.User, error) {
	var user models.User
	if userID != "" {
		err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
		}
	}
	if customerID == "" {
		return nil, nil
	}
	err := tx.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user by customer id: %w", err)
	}
	return &user, nil
}

// resolvePlan prefers the explicit plan id carried in event metadata, then
// the catalog lookup by provider price id. A nil result aborts the event.
func (s *Service) resolvePlan(ctx context.Context, planID, priceID string) (*models.SubscriptionPlan, error) {
	if planID != "" {
		p, err := s.plans.GetByID(ctx, planID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, plan.ErrPlanNotFound) {
			return nil, err
		}
	}
	if priceID == "" {
		return nil, nil
	}
	p, err := s.plans.GetByStripePriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, plan.ErrPlanNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// upsertSubscription writes the target state keyed by the external
// subscription id. An existing row for the same external id or the same user
// is overwritten in place; a fresh insert carries an ON CONFLICT clause so
// concurrent deliveries racing to create the row cannot produce two.
func (s *Service) upsertSubscription(ctx context.Context, tx *gorm.DB, m *models.Subscription) (bool, error) {
	var original models.Subscription
	err := tx.WithContext(ctx).Where("stripe_subscription_id = ?", m.StripeSubscriptionID).First(&original).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to load original subscription: %w", err)
	}
	if original.ID == "" {
		// The user may already carry a mirror row for a previous provider
		// subscription (reactivation after full termination); reuse it.
		err = tx.WithContext(ctx).Where("user_id = ?", m.UserID).First(&original).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("failed to load subscription by user: %w", err)
		}
	}

	if original.ID != "" {
		m.ID = original.ID
		m.CreatedAt = original.CreatedAt
		if m.Extra == nil {
			m.Extra = original.Extra
		}
		if err := tx.WithContext(ctx).Save(m).Error; err != nil {
			return false, fmt.Errorf("failed to update subscription: %w", err)
		}
		return false, nil
	}

	m.ID = tool.GenerateUUIDV7()
	err = tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "plan_id", "status",
			"current_period_start", "current_period_end",
			"cancel_at_period_end", "canceled_at",
			"trial_start", "trial_end", "extra", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return false, fmt.Errorf("failed to create subscription: %w", err)
	}
	return true, nil
}

// mirrorUser keeps the denormalized subscription columns on the user row in
// sync; customerID is only written when it is being bound for the first time.
func (s *Service) mirrorUser(ctx context.Context, tx *gorm.DB, userID string, status types.SubscriptionStatus, planID string, customerID *string) error {
	updates := map[string]any{
		"subscription_status":  status,
		"subscription_plan_id": planID,
	}
	if customerID != nil && *customerID != "" {
		updates["stripe_customer_id"] = *customerID
	}
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mirror user subscription state: %w", err)
	}
	return nil
}

func subscriptionFromProvider(userID, planID string, ps *stripegw.ProviderSubscription) *models.Subscription {
	return &models.Subscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: ps.ID,
		Status:               ps.Status,
		CurrentPeriodStart:   ps.PeriodStart,
		CurrentPeriodEnd:     ps.PeriodEnd,
		CancelAtPeriodEnd:    ps.CancelAtPeriodEnd,
		CanceledAt:           ps.CanceledAt,
		TrialStart:           ps.TrialStart,
		TrialEnd:             ps.TrialEnd,
	}
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
