package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/internal/platform/stripegw"
	"github.com/tableside/billing/pkg/types"
)

func TestCheckout_BindsUserAndPlanInMetadata(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", nil)
	seedPlan(t, db, "pro", "price_pro")
	gw.session = &stripegw.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}

	url, err := svc.Checkout(context.Background(), "user-1", "pro")
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/cs_1", url)

	require.NotNil(t, gw.lastCheckoutReq)
	require.Equal(t, "price_pro", gw.lastCheckoutReq.PriceID)
	require.Equal(t, "user-1", gw.lastCheckoutReq.Metadata["user_id"])
	require.Equal(t, "pro", gw.lastCheckoutReq.Metadata["plan_id"])
}

func TestCheckout_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Checkout(context.Background(), "missing", "pro")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCancel_DefaultFlagsCancelAtPeriodEnd(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})
	gw.sub = activeProviderSub("sub_1", "cus_1", "price_pro")

	info, err := svc.Cancel(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.True(t, info.CancelAtPeriodEnd)
	require.Equal(t, 1, gw.updateCalls)

	sub := loadSubscription(t, db, "sub_1")
	require.True(t, sub.CancelAtPeriodEnd)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Equal(t, types.SubscriptionEventCancelRequested, lastLedgerType(t, db))
}

func TestCancel_ImmediateTerminatesNow(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})
	gw.sub = &stripegw.ProviderSubscription{
		ID:         "sub_1",
		Status:     types.SubscriptionStatusCanceled,
		CanceledAt: lo.ToPtr(time.Now()),
	}

	info, err := svc.Cancel(context.Background(), "user-1", true)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCanceled, info.Status)
	require.Equal(t, 1, gw.cancelCalls)

	sub := loadSubscription(t, db, "sub_1")
	require.Equal(t, types.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	require.Equal(t, types.SubscriptionEventSubscriptionCanceled, lastLedgerType(t, db))
}

func TestCancel_ProviderErrorWritesNothing(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})
	gw.updateErr = errAny

	_, err := svc.Cancel(context.Background(), "user-1", false)
	require.Error(t, err)

	sub := loadSubscription(t, db, "sub_1")
	require.False(t, sub.CancelAtPeriodEnd)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.Zero(t, countLedger(t, db))
}

func TestCancel_ImmediateProviderErrorWritesNothing(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})
	gw.cancelErr = errAny

	_, err := svc.Cancel(context.Background(), "user-1", true)
	require.Error(t, err)

	require.Equal(t, types.SubscriptionStatusActive, loadSubscription(t, db, "sub_1").Status)
	require.Zero(t, countLedger(t, db))
}

func TestCancel_NoSubscriptionOnFile(t *testing.T) {
	svc, _, db := newTestService(t)
	seedUser(t, db, "user-1", nil)

	_, err := svc.Cancel(context.Background(), "user-1", false)
	require.ErrorIs(t, err, ErrNoSubscription)
}

func TestReactivate_PendingCancelClearsFlag(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
		CancelAtPeriodEnd:    true,
	})
	gw.sub = activeProviderSub("sub_1", "cus_1", "price_pro")

	info, err := svc.Reactivate(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, info.CancelAtPeriodEnd)
	require.Equal(t, 1, gw.updateCalls)

	require.False(t, loadSubscription(t, db, "sub_1").CancelAtPeriodEnd)
	require.Equal(t, types.SubscriptionEventReactivated, lastLedgerType(t, db))
}

func TestReactivate_ProviderErrorWritesNothing(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
		CancelAtPeriodEnd:    true,
	})
	gw.updateErr = errAny

	_, err := svc.Reactivate(context.Background(), "user-1")
	require.Error(t, err)

	require.True(t, loadSubscription(t, db, "sub_1").CancelAtPeriodEnd)
	require.Zero(t, countLedger(t, db))
}

func TestReactivate_TerminatedStartsFreshProviderSubscription(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_old",
		Status:               types.SubscriptionStatusCanceled,
		CanceledAt:           lo.ToPtr(time.Now().Add(-48 * time.Hour)),
	})
	gw.sub = activeProviderSub("sub_new", "cus_1", "price_pro")

	info, err := svc.Reactivate(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, info.Status)
	require.Equal(t, 1, gw.createCalls)

	sub := loadSubscription(t, db, "sub_new")
	require.Equal(t, "user-1", sub.UserID)
	require.Nil(t, sub.CanceledAt)
	require.Equal(t, types.SubscriptionEventReactivated, lastLedgerType(t, db))
}

func TestReactivate_TerminatedProviderErrorWritesNothing(t *testing.T) {
	svc, gw, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_old",
		Status:               types.SubscriptionStatusCanceled,
	})
	gw.createErr = errAny

	_, err := svc.Reactivate(context.Background(), "user-1")
	require.Error(t, err)

	sub := loadSubscription(t, db, "sub_old")
	require.Equal(t, types.SubscriptionStatusCanceled, sub.Status)
	require.Zero(t, countLedger(t, db))
}

func TestReactivate_ActiveSubscriptionNotReactivatable(t *testing.T) {
	svc, _, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})

	_, err := svc.Reactivate(context.Background(), "user-1")
	require.ErrorIs(t, err, ErrNotReactivatable)
}

func TestStatus_NoRowReturnsCanceledView(t *testing.T) {
	svc, _, _ := newTestService(t)

	info, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusCanceled, info.Status)
	require.Empty(t, info.PlanID)
}

func TestStatus_ReturnsCurrentView(t *testing.T) {
	svc, _, db := newTestService(t)
	seedUser(t, db, "user-1", lo.ToPtr("cus_1"))
	seedPlan(t, db, "pro", "price_pro")
	seedSubscription(t, db, &models.Subscription{
		UserID:               "user-1",
		PlanID:               "pro",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubscriptionStatusActive,
	})

	info, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, info.Status)
	require.Equal(t, "pro", info.PlanID)
	require.Equal(t, "pro", info.PlanName)
}
