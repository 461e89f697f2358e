package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/snapgram/internal/config"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/metrics"
	"github.com/zfogg/snapgram/internal/telemetry"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API and realtime server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Snapgram server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("session_mode", cfg.Realtime.SessionMode),
		zap.String("cluster_broker", cfg.Cluster.Broker),
	)

	metrics.Initialize()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  telemetry.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Enabled:      cfg.Telemetry.Enabled,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	app, err := buildContainer(ctx, cfg)
	if err != nil {
		return err
	}
	if tp != nil {
		app.OnCleanup("tracer", tp.Shutdown)
	}

	hubErr := make(chan error, 1)
	go func() {
		hubErr <- app.Hub().Run(context.Background())
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Log.Info("Snapgram server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	case err := <-hubErr:
		if err == nil {
			err = errors.New("exited early")
		}
		runErr = fmt.Errorf("realtime hub stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// sockets go first so hijacked connections do not hold up srv.Shutdown
	if err := app.Hub().Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Realtime hub shutdown warning", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Cleanup(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	logger.Log.Info("Server exited")
	return runErr
}
