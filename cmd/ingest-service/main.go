package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "labor/cmd/ingest-service/docs"
	"labor/pkg/bootstrap"
)

const serviceName = "ingest-service"

var configFile string

// @title           Labor Ingest Service API
// @version         1.0
// @description     Webhook intake for raw LDT lab messages

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

func main() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ingest service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root := &cobra.Command{
		Use:   serviceName,
		Short: "Ingests raw LDT lab messages",
		Long:  "Ingest Service consumes raw LDT messages from Kafka and the webhook, decodes them and stores lab results",
		RunE:  serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")
	root.AddCommand(serveCmd, migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	cfg, log, err := bootstrap.Setup(serviceName, configFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfowCtx(ctx, "Starting Ingest Service")

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
