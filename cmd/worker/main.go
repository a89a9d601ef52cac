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

	"github.com/kirillkom/health-ai-service/internal/bootstrap"
	"github.com/kirillkom/health-ai-service/internal/config"
	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/observability/logging"
	"github.com/kirillkom/health-ai-service/internal/observability/metrics"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("health-ai-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleWorker, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	var metricsServer *http.Server
	if app.Registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(app.Registry))
		metricsServer = &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker_metrics_server_failed", "error", err)
			}
		}()
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "workers", cfg.WorkerPoolSize)
	err = app.Queue.Subscribe(ctx, func(handlerCtx context.Context, req domain.AnalysisRequest) error {
		// Blocks while the pool is saturated so NATS applies backpressure.
		return app.Pool.Submit(handlerCtx, req)
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PipelineTimeout+10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error("app_close_failed", "error", err)
	}
	logger.Info("worker_stopped")
}
