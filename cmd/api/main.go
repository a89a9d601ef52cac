package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/health-ai-service/internal/adapters/http"
	"github.com/kirillkom/health-ai-service/internal/bootstrap"
	"github.com/kirillkom/health-ai-service/internal/config"
	"github.com/kirillkom/health-ai-service/internal/observability/logging"
	"github.com/kirillkom/health-ai-service/internal/observability/metrics"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("health-ai-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleAPI, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	opts := httpadapter.Options{
		Service: "api",
		Logger:  logger,
		Metrics: app.HTTPMetrics,
	}
	if app.Registry != nil {
		opts.MetricsHandler = metrics.Handler(app.Registry)
	}
	router, err := httpadapter.NewRouter(app.Trigger, app.Recommendations, app.Chat, opts)
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		_ = app.Close(context.Background())
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "dispatch_mode", cfg.DispatchMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PipelineTimeout+10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error("app_close_failed", "error", err)
	}
	logger.Info("api_stopped")
}
