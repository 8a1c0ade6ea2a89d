// Package bootstrap builds the shared infrastructure of the labor binaries and runs
// their lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"labor/internal/broker"
	"labor/internal/config"
	"labor/internal/constants"
	"labor/internal/logger"
	"labor/pkg/health"
	"labor/pkg/tracing"
)

// Base owns what every binary opens: tracing, the stores and the Kafka clients.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Service  string
	Stores   *Stores
	Producer broker.Producer
	Consumer broker.Consumer

	tracer *tracing.Provider
}

func NewBase(cfg *config.Config, log logger.Logger, service string) *Base {
	return &Base{Config: cfg, Logger: log, Service: service}
}

// NewServer binds handler to the configured port with the configured timeouts.
func (b *Base) NewServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", b.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  b.Config.Server.ReadTimeout,
		WriteTimeout: b.Config.Server.WriteTimeout,
	}
}

// Open starts tracing, connects the stores and creates the producer. The consumer is
// created only when consume is set. Without Kafka brokers both stay nil.
func (b *Base) Open(ctx context.Context, consume bool) error {
	tp, err := tracing.Init(b.Config.Tracing, b.Service)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.tracer = tp
	if tp.Enabled() {
		b.Logger.Infow("Tracing enabled", "endpoint", b.Config.Tracing.OTLP.Endpoint, "sampler", b.Config.Tracing.Sampler.Type)
	}

	if b.Stores, err = OpenStores(ctx, b.Config.Database, b.Logger); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	b.Producer, err = broker.NewProducer(b.Config.Broker, b.Service)
	if errors.Is(err, broker.ErrBrokerDisabled) {
		b.Logger.Warn("No Kafka brokers configured, outcome events are disabled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	if consume {
		if b.Consumer, err = broker.NewConsumer(b.Config.Broker, b.Service, b.Logger); err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}
	return nil
}

// Health registers Postgres as critical, and Redis and MongoDB as optional when open.
// Kafka is critical for binaries that consume.
func (b *Base) Health() *health.CheckerRegistry {
	r := health.NewCheckerRegistry()
	if b.Stores == nil {
		return r
	}
	r.Register(health.Postgres(b.Stores.Postgres))
	if b.Stores.Redis != nil {
		r.RegisterOptional(health.Redis(b.Stores.Redis))
	}
	if b.Stores.Mongo != nil {
		r.RegisterOptional(health.MongoDB(b.Stores.Mongo))
	}
	if b.Consumer != nil {
		r.Register(health.Kafka(b.Config.Broker.Kafka.Brokers))
	}
	return r
}

// Run serves srv and runs every task until ctx is cancelled or one of them fails, then
// shuts everything down.
func (b *Base) Run(ctx context.Context, srv *http.Server, tasks ...func(context.Context) error) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Logger.InfowCtx(ctx, "HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	for _, task := range tasks {
		g.Go(func() error {
			if err := task(gCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		return b.Shutdown(context.Background(), srv)
	})

	return g.Wait()
}

// Shutdown stops the server, then the consumer before the producer so in-flight
// handlers can still publish, then tracing and the stores. srv may be nil.
func (b *Base) Shutdown(ctx context.Context, srv *http.Server) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()
	b.Logger.Info("Shutting down application...")

	var errs []error
	collect := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if srv != nil {
		collect("server shutdown", srv.Shutdown(ctx))
	}
	if b.Consumer != nil {
		collect("consumer close", b.Consumer.Close())
	}
	if b.Producer != nil {
		collect("producer close", b.Producer.Close())
	}
	collect("tracer shutdown", b.tracer.Shutdown(ctx))
	errs = append(errs, b.Stores.Close(ctx)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	b.Logger.Info("Application exited successfully")
	return nil
}
