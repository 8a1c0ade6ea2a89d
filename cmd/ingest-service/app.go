package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/internal/pipeline"
	"labor/pkg/bootstrap"
	"labor/pkg/metrics"
	"labor/pkg/middleware"
	"labor/pkg/ratelimit"
	"labor/pkg/tracing"
)

// App accepts LDT messages over the webhook and, when brokers are configured, from
// the raw message topic.
type App struct {
	*bootstrap.Base
	pipeline *bootstrap.Pipeline
	limiter  *ratelimit.Limiter
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log, serviceName)}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterIngestionMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.Open(ctx, true); err != nil {
		return err
	}

	p, err := a.BuildPipeline(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	a.pipeline = p

	a.server = a.NewServer(a.router())
	return nil
}

func (a *App) router() *gin.Engine {
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

	webhook := router.Group("")
	if rl := a.Config.Webhook.RateLimit; rl.Enabled {
		metrics.RegisterAdminMetrics()
		a.limiter = ratelimit.NewLimiter(ratelimit.FromConfig(rl))
		webhook.Use(a.limiter.Middleware())
		a.Logger.Infow("Webhook rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}
	pipeline.NewHandler(a.pipeline.Service, a.Config.Webhook.MaxBodyBytes, a.Logger).RegisterRoutes(webhook)
	return router
}

func (a *App) Run(ctx context.Context) error {
	var tasks []func(context.Context) error
	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.InputTopic
		handler := pipeline.KafkaHandler(a.pipeline.Service)
		tasks = append(tasks, func(ctx context.Context) error {
			return a.Consumer.Consume(ctx, topic, handler)
		})
	}
	if a.limiter != nil {
		tasks = append(tasks, func(ctx context.Context) error {
			a.limiter.Run(ctx)
			return nil
		})
	}
	return a.Base.Run(ctx, a.server, tasks...)
}
