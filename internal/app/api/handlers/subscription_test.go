package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/pkg/types"
)

type stubBiller struct {
	info        *types.SubscriptionInfo
	checkoutURL string
	err         error

	cancelImmediate *bool
}

func (s *stubBiller) Status(_ context.Context, _ string) (*types.SubscriptionInfo, error) {
	return s.info, s.err
}

func (s *stubBiller) Checkout(_ context.Context, _ string, _ string) (string, error) {
	return s.checkoutURL, s.err
}

func (s *stubBiller) Cancel(_ context.Context, _ string, immediate bool) (*types.SubscriptionInfo, error) {
	s.cancelImmediate = &immediate
	return s.info, s.err
}

func (s *stubBiller) Reactivate(_ context.Context, _ string) (*types.SubscriptionInfo, error) {
	return s.info, s.err
}

func TestApiGetSubscription_ReturnsInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	b := &stubBiller{info: &types.SubscriptionInfo{
		Status:           types.SubscriptionStatusActive,
		PlanID:           "pro_monthly",
		PlanName:         "Pro",
		CurrentPeriodEnd: lo.ToPtr(end),
	}}

	r := gin.New()
	r.GET("/api/v1/billing/subscription", ApiGetSubscription(b))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"active"`)
	require.Contains(t, w.Body.String(), `"plan_id":"pro_monthly"`)
}

func TestApiCheckout_ReturnsURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{checkoutURL: "https://checkout.stripe.com/c/pay/cs_1"}

	r := gin.New()
	r.POST("/api/v1/billing/checkout", ApiCheckout(b))

	body, _ := json.Marshal(CheckoutRequest{PlanID: "pro_monthly"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "checkout.stripe.com")
}

func TestApiCheckout_RequiresPlanID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{}

	r := gin.New()
	r.POST("/api/v1/billing/checkout", ApiCheckout(b))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiCancel_PassesImmediateFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{info: &types.SubscriptionInfo{Status: types.SubscriptionStatusCanceled}}

	r := gin.New()
	r.POST("/api/v1/billing/cancel", ApiCancel(b))

	body, _ := json.Marshal(CancelRequest{Immediate: true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, b.cancelImmediate)
	require.True(t, *b.cancelImmediate)
}

func TestApiCancel_NoSubscriptionIsBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{err: reconcile.ErrNoSubscription}

	r := gin.New()
	r.POST("/api/v1/billing/cancel", ApiCancel(b))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/cancel", bytes.NewReader([]byte(`{"immediate":false}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiReactivate_NotReactivatableIsBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{err: reconcile.ErrNotReactivatable}

	r := gin.New()
	r.POST("/api/v1/billing/reactivate", ApiReactivate(b))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/reactivate", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":40000`)
}

func TestApiReactivate_ProviderErrorIsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &stubBiller{err: errors.New("stripe unavailable")}

	r := gin.New()
	r.POST("/api/v1/billing/reactivate", ApiReactivate(b))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/reactivate", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"code":50000`)
}
