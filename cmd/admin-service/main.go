package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "labor/cmd/admin-service/docs"
	"labor/pkg/bootstrap"
)

const serviceName = "admin-service"

// @title           Labor Admin Service API
// @version         1.0
// @description     Operator API for inspecting and replaying quarantined LDT messages

// @host      localhost:8082
// @BasePath  /api/v1

// @schemes   http https

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Operator API for the quarantine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configFile string) error {
	cfg, log, err := bootstrap.Setup(serviceName, configFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfowCtx(ctx, "Starting Admin Service")

	app := NewApp(cfg, log)
	if err := app.Initialize(ctx); err != nil {
		log.Errorw("Failed to initialize application", "error", err)
		_ = app.Shutdown(context.Background(), nil)
		return err
	}

	if err := app.Run(ctx); err != nil {
		log.ErrorwCtx(ctx, "Application error", "error", err)
		return err
	}
	return nil
}
