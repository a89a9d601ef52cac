package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
	"github.com/kirillkom/health-ai-service/internal/observability/logging"
)

var (
	errQueueFull  = errors.New("analysis queue is full")
	errPoolClosed = errors.New("analysis pool is closed")
)

// Observer receives run lifecycle events, typically pipeline metrics.
type Observer interface {
	RunStarted()
	RunFinished(outcome domain.RunOutcome, duration time.Duration, writeBackFailed bool)
	ObserveQueueLag(lag time.Duration)
}

// Completion describes one finished run. It is only logged and measured; nobody
// waits for it on the request path.
type Completion struct {
	Request  domain.AnalysisRequest
	Report   domain.RunReport
	Err      error
	Duration time.Duration
}

type Config struct {
	Workers    int
	QueueSize  int
	RunTimeout time.Duration
}

type job struct {
	req        domain.AnalysisRequest
	enqueuedAt time.Time
}

// Pool runs analyses on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	runner   ports.AnalysisRunner
	observer Observer
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	jobs        chan job
	completions chan Completion

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	workers   sync.WaitGroup
	drainDone chan struct{}
}

func NewPool(runner ports.AnalysisRunner, cfg Config, observer Observer, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:      runner,
		observer:    observer,
		logger:      logger,
		timeout:     cfg.RunTimeout,
		now:         time.Now,
		jobs:        make(chan job, cfg.QueueSize),
		completions: make(chan Completion, cfg.Workers),
		ctx:         ctx,
		cancel:      cancel,
		drainDone:   make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.workers.Add(1)
		go p.work()
	}
	go p.drain()
	return p
}

// Schedule enqueues req without blocking. A full queue is reported as ErrTemporary.
func (p *Pool) Schedule(_ context.Context, req domain.AnalysisRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return domain.WrapError(domain.ErrTemporary, "schedule analysis", errPoolClosed)
	}
	select {
	case p.jobs <- job{req: req, enqueuedAt: p.now()}:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "schedule analysis", errQueueFull)
	}
}

// Submit waits for queue space until ctx is done. Message consumers use it to
// push back on their source instead of dropping work.
func (p *Pool) Submit(ctx context.Context, req domain.AnalysisRequest) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := p.Schedule(ctx, req)
		if err == nil || !errors.Is(err, errQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("submit analysis: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops intake and waits for queued and in-flight runs. When ctx expires
// first, remaining runs are canceled and still make their failed write-back.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}
	p.cancel()
	close(p.completions)
	<-p.drainDone
	return err
}

func (p *Pool) work() {
	defer p.workers.Done()
	for j := range p.jobs {
		p.completions <- p.run(j)
	}
}

func (p *Pool) run(j job) (c Completion) {
	started := p.now()
	c.Request = j.req
	if p.observer != nil {
		p.observer.ObserveQueueLag(started.Sub(j.enqueuedAt))
		p.observer.RunStarted()
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			c.Err = fmt.Errorf("pipeline panic: %v", r)
			c.Report = domain.RunReport{RecordID: j.req.RecordID, Outcome: domain.OutcomeFailed}
		}
		c.Duration = p.now().Sub(started)
	}()

	c.Report, c.Err = p.runner.Run(ctx, j.req)
	return c
}

func (p *Pool) drain() {
	defer close(p.drainDone)
	for c := range p.completions {
		if p.observer != nil {
			p.observer.RunFinished(c.Report.Outcome, c.Duration, c.Report.WriteBackErr != nil)
		}
		logger := logging.ForRequest(p.logger, c.Request.RecordID, c.Request.RequestID)
		attrs := []any{
			"outcome", c.Report.Outcome,
			"duration_ms", c.Duration.Milliseconds(),
		}
		if c.Err != nil {
			logger.Warn("pipeline_completed", append(attrs, "error", c.Err)...)
			continue
		}
		logger.Info("pipeline_completed", attrs...)
	}
}
