package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/internal/quarantine"
	"labor/pkg/bootstrap"
	"labor/pkg/metrics"
	"labor/pkg/middleware"
)

// App runs the quarantine retry worker. Its HTTP server only exposes health and
// metrics.
type App struct {
	*bootstrap.Base
	worker *quarantine.Worker
	server *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log, serviceName)}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterWorkerMetrics()
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

	var lock quarantine.TickLock
	if a.Stores.Redis != nil {
		redisLock, err := quarantine.NewRedisLock(a.Stores.Redis, a.Config.Worker.LockKey, a.Config.Worker.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to initialize worker lock: %w", err)
		}
		lock = redisLock
	} else {
		a.Logger.Warn("Redis not configured, running without tick lock")
	}
	a.worker = quarantine.NewWorker(p.Quarantine, p.Service, lock, a.Config.Worker, a.Logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.GET("/health", a.Health().Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = a.NewServer(router)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	return a.Base.Run(ctx, a.server, a.worker.Run)
}
