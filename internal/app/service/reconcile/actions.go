package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/internal/platform/stripegw"
	"github.com/tableside/billing/pkg/logctx"
	"github.com/tableside/billing/pkg/types"
)

var (
	// ErrNoSubscription is returned when a user-initiated action needs an
	// existing subscription and none is on file.
	ErrNoSubscription = errors.New("no subscription on file")
	// ErrUserNotFound is returned when the acting user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotReactivatable is returned when reactivation is requested but the
	// subscription is neither pending cancellation nor fully terminated.
	ErrNotReactivatable = errors.New("subscription is not reactivatable")
)

// Checkout creates a hosted checkout session for the given plan and returns
// its redirect URL. The user/plan binding travels in the session metadata so
// the completion webhook can resolve both without guessing.
func (s *Service) Checkout(ctx context.Context, userID, planID string) (string, error) {
	log := logctx.FromCtx(ctx, s.log)

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return "", err
	}

	req := &stripegw.CheckoutSessionRequest{
		CustomerEmail: user.Email,
		PriceID:       p.StripePriceID,
		Metadata: map[string]string{
			"user_id": userID,
			"plan_id": p.ID,
		},
	}
	if user.StripeCustomerID != nil {
		req.CustomerID = *user.StripeCustomerID
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return "", err
	}
	log.Infow("checkout_session_created", "user_id", userID, "plan_id", planID, "session_id", session.ID)
	return session.URL, nil
}

// Cancel requests cancellation of the user's subscription. By default the
// subscription stays entitled until the period end; immediate terminates it
// at the provider right away. The provider call happens first, local state
// only changes after it succeeds.
func (s *Service) Cancel(ctx context.Context, userID string, immediate bool) (*types.SubscriptionInfo, error) {
	log := logctx.FromCtx(ctx, s.log)

	sub, err := s.activeSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	if immediate {
		ps, err := s.gateway.CancelNow(ctx, sub.StripeSubscriptionID)
		if err != nil {
			return nil, err
		}
		sub.Status = types.SubscriptionStatusCanceled
		sub.CanceledAt = ps.CanceledAt
		if sub.CanceledAt == nil {
			sub.CanceledAt = lo.ToPtr(time.Now())
		}
	} else {
		if _, err := s.gateway.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true); err != nil {
			return nil, err
		}
		sub.CancelAtPeriodEnd = true
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := s.mirrorUser(ctx, tx, userID, sub.Status, sub.PlanID, nil); err != nil {
			return err
		}
		evType := types.SubscriptionEventCancelRequested
		if immediate {
			evType = types.SubscriptionEventSubscriptionCanceled
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               userID,
			EventType:            evType,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               sub.Status,
			StripeSubscriptionID: sub.StripeSubscriptionID,
			Payload:              mustJSON(map[string]any{"immediate": immediate}),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record cancellation: %w", err)
	}
	s.cache.Invalidate(ctx, userID)
	log.Infow("subscription_cancel_recorded", "user_id", userID, "immediate", immediate)
	return s.buildInfo(ctx, sub), nil
}

// Reactivate undoes a pending cancellation, or starts a fresh subscription
// at the provider when the previous one already terminated.
func (s *Service) Reactivate(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	log := logctx.FromCtx(ctx, s.log)

	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	switch {
	case sub.Status != types.SubscriptionStatusCanceled && sub.CancelAtPeriodEnd:
		// Still alive at the provider, just flagged; clear the flag.
		if _, err := s.gateway.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false); err != nil {
			return nil, err
		}
		sub.CancelAtPeriodEnd = false
	case sub.Status == types.SubscriptionStatusCanceled:
		// Fully terminated; a new provider subscription gets a new id.
		var user models.User
		if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if user.StripeCustomerID == nil {
			return nil, ErrNotReactivatable
		}
		p, err := s.plans.GetByID(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		ps, err := s.gateway.CreateSubscription(ctx, *user.StripeCustomerID, p.StripePriceID, map[string]string{
			"user_id": userID,
			"plan_id": p.ID,
		})
		if err != nil {
			return nil, err
		}
		sub.StripeSubscriptionID = ps.ID
		sub.Status = ps.Status
		sub.CurrentPeriodStart = ps.PeriodStart
		sub.CurrentPeriodEnd = ps.PeriodEnd
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
	default:
		return nil, ErrNotReactivatable
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(&sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := s.mirrorUser(ctx, tx, userID, sub.Status, sub.PlanID, nil); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, &models.SubscriptionEvent{
			UserID:               userID,
			EventType:            types.SubscriptionEventReactivated,
			PlanID:               lo.ToPtr(sub.PlanID),
			Status:               sub.Status,
			StripeSubscriptionID: sub.StripeSubscriptionID,
			Payload:              mustJSON(map[string]any{}),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record reactivation: %w", err)
	}
	s.cache.Invalidate(ctx, userID)
	log.Infow("subscription_reactivated", "user_id", userID, "subscription_id", sub.StripeSubscriptionID)
	return s.buildInfo(ctx, &sub), nil
}

// Status returns the user's current subscription view, read through the
// cache. A user with no subscription row gets a canceled, plan-less view.
func (s *Service) Status(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	if info := s.cache.GetSubscriptionInfo(ctx, userID); info != nil {
		return info, nil
	}

	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.SubscriptionInfo{Status: types.SubscriptionStatusCanceled}, nil
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	info := s.buildInfo(ctx, &sub)
	s.cache.SetSubscriptionInfo(ctx, userID, info)
	return info, nil
}

func (s *Service) activeSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, types.SubscriptionStatusCanceled).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) buildInfo(ctx context.Context, sub *models.Subscription) *types.SubscriptionInfo {
	info := &types.SubscriptionInfo{
		Status:             sub.Status,
		PlanID:             sub.PlanID,
		CurrentPeriodStart: lo.ToPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   lo.ToPtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if p, err := s.plans.GetByID(ctx, sub.PlanID); err == nil {
		info.PlanName = p.Name
	}
	return info
}
