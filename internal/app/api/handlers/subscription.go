package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tableside/billing/internal/app/api/middleware"
	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/plan"
	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/internal/models"
	"github.com/tableside/billing/pkg/response"
	"github.com/tableside/billing/pkg/types"
)

// Biller is the slice of the reconciliation service the user-facing
// handlers need.
type Biller interface {
	Status(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
	Checkout(ctx context.Context, userID, planID string) (string, error)
	Cancel(ctx context.Context, userID string, immediate bool) (*types.SubscriptionInfo, error)
	Reactivate(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
}

type CheckoutRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

type PlanItem struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Price    string             `json:"price"`
	Currency string             `json:"currency"`
	Cycle    types.BillingCycle `json:"cycle"`
}

// @Summary      Current Subscription
// @Description  Returns the caller's subscription status, plan and billing period.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/billing/subscription [get]
func ApiGetSubscription(b Biller) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := b.Status(c.Request.Context(), middleware.UserIDFromGin(c))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Start Checkout
// @Description  Creates a hosted checkout session for the given plan and returns its URL.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CheckoutRequest true "Checkout request"
// @Success      200  {object}  handlers.RespCheckout
// @Router       /api/v1/billing/checkout [post]
func ApiCheckout(b Biller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		url, err := b.Checkout(c.Request.Context(), middleware.UserIDFromGin(c), req.PlanID)
		if err != nil {
			if errors.Is(err, plan.ErrPlanNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "unknown plan"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CheckoutResponse{CheckoutURL: url}))
	}
}

// @Summary      Cancel Subscription
// @Description  Requests cancellation. By default the subscription remains entitled until the period end; immediate=true terminates right away.
// @Tags         Billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CancelRequest true "Cancel request"
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/billing/cancel [post]
func ApiCancel(b Biller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		info, err := b.Cancel(c.Request.Context(), middleware.UserIDFromGin(c), req.Immediate)
		if err != nil {
			if errors.Is(err, reconcile.ErrNoSubscription) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no subscription to cancel"))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Reactivate Subscription
// @Description  Undoes a pending cancellation, or starts a fresh subscription when the previous one ended.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Router       /api/v1/billing/reactivate [post]
func ApiReactivate(b Biller) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := b.Reactivate(c.Request.Context(), middleware.UserIDFromGin(c))
		if err != nil {
			switch {
			case errors.Is(err, reconcile.ErrNoSubscription), errors.Is(err, reconcile.ErrNotReactivatable):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Billing History
// @Description  Returns the caller's subscription event history, newest first.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/events [get]
func ApiListMyEvents(events *eventlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := events.ListByUser(c.Request.Context(), middleware.UserIDFromGin(c), 100)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rows))
	}
}

// @Summary      List Plans
// @Description  Returns the active plan catalog.
// @Tags         Billing
// @Produce      json
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/billing/plans [get]
func ApiListPlans(plans *plan.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := plans.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(rows, func(p *models.SubscriptionPlan, _ int) *PlanItem {
			return &PlanItem{
				ID:       p.ID,
				Name:     p.Name,
				Price:    p.Price.StringFixed(2),
				Currency: p.Currency,
				Cycle:    p.Cycle,
			}
		})
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

func RegisterBillingRoutes(r gin.IRouter, b Biller, plans *plan.Service, events *eventlog.Service) {
	r.GET("/subscription", ApiGetSubscription(b))
	r.POST("/checkout", ApiCheckout(b))
	r.POST("/cancel", ApiCancel(b))
	r.POST("/reactivate", ApiReactivate(b))
	r.GET("/events", ApiListMyEvents(events))
}
