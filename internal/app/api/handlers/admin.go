package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/statistics"
	"github.com/tableside/billing/pkg/response"
	"github.com/tableside/billing/pkg/types"
)

type ListSubscriptionEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// @Summary      List Subscription Events (Admin)
// @Description  Retrieves a paginated and filterable scan of the subscription event ledger.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListSubscriptionEventsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListSubscriptionEvents
// @Router       /api/v1/admin/list_subscription_events [post]
func ApiListSubscriptionEvents(events *eventlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListSubscriptionEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		scanReq := &eventlog.ScanEventsRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		res, err := events.Scan(c.Request.Context(), scanReq)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Subscription Statistics (Admin)
// @Description  Retrieves daily subscription and revenue statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.SubscriptionStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespSubscriptionStatistic
// @Router       /api/v1/admin/get_subscription_statistic [post]
func ApiGetSubscriptionStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.SubscriptionStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetSubscriptionStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Snapshot Subscriptions (Admin)
// @Description  Writes today's per-user subscription snapshots, used by the daily statistics. Safe to re-run.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/snapshot_subscriptions [post]
func ApiSnapshotSubscriptions(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := svc.SnapshotAll(c.Request.Context(), time.Now())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]int{"count": count}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, events *eventlog.Service, stats *statistics.Service) {
	r.POST("/list_subscription_events", ApiListSubscriptionEvents(events))
	r.POST("/get_subscription_statistic", ApiGetSubscriptionStatistic(stats))
	r.POST("/snapshot_subscriptions", ApiSnapshotSubscriptions(stats))
}
