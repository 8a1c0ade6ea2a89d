package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"labor/pkg/bootstrap"
)

const serviceName = "retry-worker"

func main() {
	var (
		configFile string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Replays quarantined LDT messages",
		Long:  "Retry Worker leases due quarantine entries and replays them until they resolve or exhaust their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, once)
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single tick and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configFile string, once bool) error {
	cfg, log, err := bootstrap.Setup(serviceName, configFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.Errorw("Failed to initialize application", "error", err)
		_ = app.Shutdown(context.Background(), nil)
		return err
	}

	if once {
		defer app.Shutdown(context.Background(), nil)
		n, err := app.worker.Tick(ctx)
		log.Infow("Single tick finished", "leased", n)
		return err
	}

	if err := app.Run(ctx); err != nil {
		log.ErrorwCtx(ctx, "Application error", "error", err)
		return err
	}
	return nil
}
