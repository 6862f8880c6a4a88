package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	syncapp "github.com/stacklok/connector-sync/internal/app"
	"github.com/stacklok/connector-sync/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync API server and the periodic coordinator",
		Long: `Start the HTTP API for triggering and inspecting sync sessions, together with
the coordinator that runs connectors on their configured sync interval.`,
		RunE: runServe,
	}

	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	address := viper.GetString("address")
	app, err := syncapp.NewSyncApp(ctx,
		syncapp.WithConfig(cfg),
		syncapp.WithAddress(address),
		syncapp.WithMeterProvider(tel.MeterProvider()),
		syncapp.WithTracerProvider(tel.TracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		app.Close()
		return err
	case <-ctx.Done():
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
