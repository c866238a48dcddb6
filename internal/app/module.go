package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/tableside/billing/internal/app/api/server"
	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/plan"
	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/internal/app/service/statistics"
	"github.com/tableside/billing/internal/app/service/webhook"
	"github.com/tableside/billing/internal/app/service/webhooklog"
	"github.com/tableside/billing/internal/platform/cache"
	"github.com/tableside/billing/internal/platform/db"
	"github.com/tableside/billing/internal/platform/stripegw"
	"github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	config.Module,
	logger.Module,
	db.Module,
	cache.Module,
	stripegw.Module,
	plan.Module,
	eventlog.Module,
	webhooklog.Module,
	reconcile.Module,
	webhook.Module,
	statistics.Module,
	server.Module,
)
