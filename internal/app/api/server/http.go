package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tableside/billing/docs"
	"github.com/tableside/billing/internal/app/api/handlers"
	mw "github.com/tableside/billing/internal/app/api/middleware"
	"github.com/tableside/billing/internal/app/service/eventlog"
	"github.com/tableside/billing/internal/app/service/plan"
	"github.com/tableside/billing/internal/app/service/reconcile"
	"github.com/tableside/billing/internal/app/service/statistics"
	"github.com/tableside/billing/internal/app/service/webhook"
	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/metrics"
	"github.com/tableside/billing/pkg/response"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Tracing only at the engine level; loggers attach per group so the
	// metrics listener stays quiet.
	r.Use(mw.Trace())
	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config, wh *webhook.Service, rec *reconcile.Service, plans *plan.Service, events *eventlog.Service, stats *statistics.Service) {
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			MetricsList: []*metrics.Metric{metrics.MetricsWebhookEvents},
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: health, swagger, plan catalog, webhook ingress
	pub := r.Group("/")
	pub.Use(mw.RequestLogger(log), mw.AccessLog())
	handlers.RegisterHealthRoutes(pub)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	billing := r.Group("/api/v1/billing")
	billing.Use(mw.RequestLogger(log), mw.AccessLog())
	handlers.RegisterWebhookRoutes(billing, wh)
	billing.GET("/plans", handlers.ApiListPlans(plans))

	// Authenticated user surface
	authed := billing.Group("/")
	authed.Use(mw.Auth(cfg))
	handlers.RegisterBillingRoutes(authed, rec, plans, events)

	// Admin surface
	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLogger(log), mw.AccessLog(), mw.Auth(cfg), mw.RequireAdmin())
	handlers.RegisterAdminRoutes(admin, events, stats)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
