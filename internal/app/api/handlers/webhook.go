package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tableside/billing/internal/app/service/webhook"
	"github.com/tableside/billing/pkg/response"
)

// maxWebhookBody caps delivery payloads; real provider events are far
// smaller.
const maxWebhookBody = 1 << 20

// WebhookProcessor verifies and applies one provider delivery.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe event deliveries. The body must be the raw event payload; the Stripe-Signature header is verified before any processing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Raw Stripe event payload"
// @Success      200  {object}  handlers.RespOK
// @Failure      400  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /api/v1/billing/webhook/stripe [post]
func ApiStripeWebhook(svc WebhookProcessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			response.BadRequest(c, "unreadable body")
			return
		}

		err = svc.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, response.OKT[any](nil))
		case errors.Is(err, webhook.ErrInvalidSignature):
			// 400 tells the provider not to retry a forged delivery
			response.BadRequest(c, "invalid signature")
		default:
			// 500 makes the provider retry later
			response.InternalError(c)
		}
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc *webhook.Service) {
	r.POST("/webhook/stripe", ApiStripeWebhook(svc))
}
