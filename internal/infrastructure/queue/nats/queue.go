package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
	"github.com/kirillkom/health-ai-service/internal/observability/logging"
)

const workerQueueGroup = "analysis-workers"

// Queue moves analysis requests between the API and worker processes.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("health-ai-service"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Schedule publishes the request for a worker process and returns without waiting for the run.
func (q *Queue) Schedule(ctx context.Context, req domain.AnalysisRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode analysis request: %w", err)
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Subscribe hands every decoded request to handler until ctx is cancelled, then drains.
// Messages that do not decode into a valid request are logged and dropped.
func (q *Queue) Subscribe(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		q.handleMessage(ctx, handler, msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handleMessage(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error, msg *nats.Msg) {
	req, err := decodeRequest(msg.Data)
	if err != nil {
		q.logger.Warn("analysis_message_dropped", "subject", msg.Subject, "error", err)
		return
	}

	logger := logging.ForRequest(q.logger, req.RecordID, req.RequestID)
	if ctx.Err() != nil {
		// Arrived while draining; the run is lost unless the record is reprocessed.
		logger.Warn("analysis_message_dropped", "subject", msg.Subject, "reason", "shutting down")
		return
	}
	if err := handler(ctx, req); err != nil {
		logger.Error("analysis_handoff_failed", "error", err)
		return
	}
	logger.Debug("analysis_received")
}

func decodeRequest(data []byte) (domain.AnalysisRequest, error) {
	var req domain.AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("decode analysis request: %w", err)
	}
	req.RecordID = strings.TrimSpace(req.RecordID)
	if err := req.Validate(); err != nil {
		return domain.AnalysisRequest{}, err
	}
	return req, nil
}
