package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"labor/internal/admin"
	"labor/internal/config"
	"labor/internal/logger"
	"labor/pkg/bootstrap"
	"labor/pkg/metrics"
	"labor/pkg/middleware"
	"labor/pkg/ratelimit"
	"labor/pkg/tracing"
)

// App serves the quarantine operator API.
type App struct {
	*bootstrap.Base
	limiter *ratelimit.Limiter
	server  *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log, serviceName)}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterAdminMetrics()
	metrics.RegisterIngestionMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.Open(ctx, false); err != nil {
		return err
	}

	p, err := a.BuildPipeline(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	var auditReader admin.AuditReader
	if p.Audit != nil {
		auditReader = p.Audit
	}
	handler := admin.NewHandler(p.Quarantine, p.Service, auditReader, a.Logger)

	a.server = a.NewServer(a.router(handler))
	return nil
}

func (a *App) router(handler *admin.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(
		tracing.LogContextMiddleware(serviceName),
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(a.Logger),
		middleware.LoggerMiddleware(a.Logger),
	)

	router.GET("/health", a.Health().Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("")
	if rl := a.Config.Admin.RateLimit; rl.Enabled {
		a.limiter = ratelimit.NewLimiter(ratelimit.FromConfig(rl))
		api.Use(a.limiter.Middleware())
		a.Logger.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}
	handler.RegisterRoutes(api)
	return router
}

func (a *App) Run(ctx context.Context) error {
	if a.limiter == nil {
		return a.Base.Run(ctx, a.server)
	}
	return a.Base.Run(ctx, a.server, func(ctx context.Context) error {
		a.limiter.Run(ctx)
		return nil
	})
}
