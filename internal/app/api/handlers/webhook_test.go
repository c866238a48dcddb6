package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tableside/billing/internal/app/service/webhook"
)

type stubProcessor struct {
	err     error
	payload []byte
	sig     string
}

func (s *stubProcessor) Process(_ context.Context, payload []byte, sigHeader string) error {
	s.payload = payload
	s.sig = sigHeader
	return s.err
}

func webhookRequest(body, sig string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook/stripe", bytes.NewReader([]byte(body)))
	req.Header.Set("Stripe-Signature", sig)
	return req
}

func TestApiStripeWebhook_OKOnSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &stubProcessor{}

	r := gin.New()
	r.POST("/api/v1/billing/webhook/stripe", ApiStripeWebhook(p))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(`{"id":"evt_1"}`, "t=1,v1=abc"))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"id":"evt_1"}`, string(p.payload))
	require.Equal(t, "t=1,v1=abc", p.sig)
}

func TestApiStripeWebhook_BadRequestOnInvalidSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &stubProcessor{err: webhook.ErrInvalidSignature}

	r := gin.New()
	r.POST("/api/v1/billing/webhook/stripe", ApiStripeWebhook(p))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(`{"id":"evt_1"}`, "t=1,v1=bogus"))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApiStripeWebhook_InternalErrorTriggersRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := &stubProcessor{err: errors.New("database down")}

	r := gin.New()
	r.POST("/api/v1/billing/webhook/stripe", ApiStripeWebhook(p))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, webhookRequest(`{"id":"evt_1"}`, "t=1,v1=abc"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	// the error detail stays out of the response body
	require.NotContains(t, w.Body.String(), "database down")
}
