package handlers

import (
	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/statistics"
	"github.com/tableside/billing/pkg/response"
	"github.com/tableside/billing/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespSubscriptionInfo wraps SubscriptionInfo in the standard envelope.
type RespSubscriptionInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.SubscriptionInfo   `json:"data"`
}

// RespCheckout wraps CheckoutResponse in the standard envelope.
type RespCheckout struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CheckoutResponse         `json:"data"`
}

// RespPlans wraps the plan catalog in the standard envelope.
type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []PlanItem               `json:"data"`
}

// RespListSubscriptionEvents wraps the admin ledger scan in the standard envelope.
type RespListSubscriptionEvents struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    eventlog.ScanEventsResponse `json:"data"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}
