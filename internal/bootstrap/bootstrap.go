package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/health-ai-service/internal/config"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
	"github.com/kirillkom/health-ai-service/internal/core/usecase"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/dispatch"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/download"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/gateway/healthrecords"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/gateway/recipes"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/llm/chat"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/lock"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/parsing/llamaparse"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/queue/nats"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/health-ai-service/internal/observability/metrics"
)

type Role string

const (
	// RoleAPI serves HTTP and runs analyses in-process unless dispatch goes through NATS.
	RoleAPI Role = "api"
	// RoleWorker consumes analysis requests from NATS.
	RoleWorker Role = "worker"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Registry        *prometheus.Registry
	HTTPMetrics     *metrics.HTTPServerMetrics
	PipelineMetrics *metrics.PipelineMetrics
	BreakerMetrics  *metrics.BreakerMetrics

	Trigger         ports.AnalysisTrigger
	Recommendations ports.RecommendationReader
	Chat            ports.NutritionChat

	// Pool is nil when this process does not execute pipeline runs.
	Pool *dispatch.Pool
	// Queue is nil for in-process dispatch.
	Queue *nats.Queue

	closers []func(ctx context.Context) error
}

func New(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if role == RoleWorker && cfg.DispatchMode != config.DispatchNATS {
		return nil, errors.New("worker requires DISPATCH_MODE=nats")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	if cfg.MetricsEnabled {
		app.Registry = metrics.NewRegistry()
		app.PipelineMetrics = metrics.NewPipelineMetrics(app.Registry, string(role))
		app.BreakerMetrics = metrics.NewBreakerMetrics(app.Registry, string(role))
		if role == RoleAPI {
			app.HTTPMetrics = metrics.NewHTTPServerMetrics(app.Registry, string(role))
		}
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func(context.Context) error { return db.Close() })

	store := postgres.NewRecommendationRepository(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Recommendations = usecase.NewRecommendationQueryUseCase(store)

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.Breaker.Enabled = cfg.BreakerEnabled
	if app.BreakerMetrics != nil {
		resilienceCfg.Observer = app.BreakerMetrics
	}
	executor := resilience.NewExecutor(resilienceCfg, logger)

	model, err := app.buildModelClient(executor)
	if err != nil {
		return nil, err
	}
	app.Chat = usecase.NewChatUseCase(chat.NewAssistant(model), logger)

	records := healthrecords.New(cfg.HealthServiceURL, healthrecords.Options{
		ReadTimeout:  cfg.RecordReadTimeout,
		WriteTimeout: cfg.RecordWriteTimeout,
		Executor:     executor,
	})

	var scheduler ports.AnalysisScheduler
	if cfg.DispatchMode == config.DispatchNATS {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.onClose(func(context.Context) error {
			queue.Close()
			return nil
		})
		scheduler = queue
	}

	if role == RoleWorker || cfg.DispatchMode == config.DispatchInProcess {
		runner, err := app.buildPipeline(ctx, db, records, model, executor)
		if err != nil {
			return nil, err
		}
		pool := dispatch.NewPool(runner, dispatch.Config{
			Workers:    cfg.WorkerPoolSize,
			QueueSize:  cfg.WorkerQueueSize,
			RunTimeout: cfg.PipelineTimeout,
		}, app.PipelineMetrics, logger)
		app.Pool = pool
		// Registered last so in-flight runs finish before their clients close.
		app.onClose(pool.Close)
		if scheduler == nil {
			scheduler = pool
		}
	}

	app.Trigger = usecase.NewTriggerAnalysisUseCase(scheduler, records)
	return app, nil
}

func (a *App) buildPipeline(
	ctx context.Context,
	db *sql.DB,
	records ports.RecordStore,
	model *chat.Client,
	executor *resilience.Executor,
) (*usecase.PipelineExecutor, error) {
	cfg := a.Config

	scratch, err := localfs.New(cfg.ScratchPath)
	if err != nil {
		return nil, fmt.Errorf("init scratch storage: %w", err)
	}
	downloader, err := download.New(cfg.MediaServiceURL, scratch, download.Options{
		Timeout:  cfg.DownloadTimeout,
		MaxBytes: cfg.DownloadMaxBytes,
		Executor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init downloader: %w", err)
	}

	var parser ports.DocumentParser
	if cfg.LlamaParseAPIKey == "" {
		a.Logger.Warn("pdf_parsing_local_fallback", "reason", "LLAMA_PARSE_API_KEY is empty")
		parser = pdftext.NewParser(scratch)
	} else {
		parser = llamaparse.New(llamaparse.Config{
			BaseURL:      cfg.LlamaParseURL,
			APIKey:       cfg.LlamaParseAPIKey,
			Language:     cfg.LlamaParseLanguage,
			PollInterval: cfg.ParsePollInterval,
			MaxAttempts:  cfg.ParseMaxAttempts,
		}, executor, a.PipelineMetrics, a.Logger)
	}

	runLock, err := a.buildRunLock(ctx)
	if err != nil {
		return nil, err
	}

	return usecase.NewPipelineExecutor(usecase.PipelineDeps{
		Records:         records,
		Downloader:      downloader,
		Scratch:         scratch,
		TextReader:      plaintext.NewReader(scratch),
		Parser:          parser,
		Extractor:       chat.NewExtractor(model),
		Candidates:      recipes.New(cfg.RecipeServiceURL, cfg.CandidateTimeout, executor),
		Recommender:     chat.NewRecommender(model),
		Recommendations: postgres.NewRecommendationRepository(db),
		Lock:            runLock,
		Logger:          a.Logger,
	}, usecase.PipelineConfig{
		DefaultMaxRecommendations: cfg.DefaultMaxRecommendations,
		CandidateLimit:            cfg.CandidateLimit,
		ExtractedTextLimit:        cfg.ExtractedTextLimit,
		LockTTL:                   cfg.RunLockTTL,
	}), nil
}

func (a *App) buildModelClient(executor *resilience.Executor) (*chat.Client, error) {
	cfg := a.Config
	prompts, err := chat.LoadPrompts(cfg.ModelPromptsFile)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return chat.New(chat.Config{
		BaseURL:     cfg.ModelAPIURL,
		APIKey:      cfg.ModelAPIKey,
		TextModel:   cfg.ModelText,
		VisionModel: cfg.ModelVision,
		Timeout:     cfg.ModelTimeout,
		RateLimit:   cfg.ModelRateLimitRPS,
		Temperature: cfg.ModelTemperature,
	}, prompts, executor), nil
}

// buildRunLock returns nil when runs for one record are allowed to overlap.
func (a *App) buildRunLock(ctx context.Context) (ports.RunLock, error) {
	switch a.Config.RunLockBackend {
	case config.LockMemory:
		return lock.NewMemoryLock(), nil
	case config.LockRedis:
		redisLock, err := lock.NewRedisLock(ctx, lock.RedisConfig{
			Addr:     a.Config.RedisAddr,
			Password: a.Config.RedisPassword,
			DB:       a.Config.RedisDB,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("init redis run lock: %w", err)
		}
		a.onClose(func(context.Context) error { return redisLock.Close() })
		return redisLock, nil
	default:
		return nil, nil
	}
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
