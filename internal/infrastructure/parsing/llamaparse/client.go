package llamaparse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 60
)

// PollObserver receives the number of job polls made before a terminal status.
type PollObserver interface {
	ObserveParsingPolls(status domain.ParsingStatus, attempts int)
}

type Config struct {
	BaseURL      string
	APIKey       string
	Language     string
	Instruction  string
	PollInterval time.Duration
	MaxAttempts  int
	CallTimeout  time.Duration
}

// Client converts PDFs to markdown through an asynchronous parsing job: submit,
// poll until a terminal status, then retrieve the result.
type Client struct {
	baseURL      string
	apiKey       string
	language     string
	instruction  string
	pollInterval time.Duration
	maxAttempts  int
	callTimeout  time.Duration
	httpClient   *http.Client
	executor     *resilience.Executor
	observer     PollObserver
	logger       *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, executor *resilience.Executor, observer PollObserver, logger *slog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Instruction) == "" {
		cfg.Instruction = "Extract tables and text"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		language:     cfg.Language,
		instruction:  cfg.Instruction,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		callTimeout:  cfg.CallTimeout,
		httpClient:   &http.Client{},
		executor:     executor,
		observer:     observer,
		logger:       logger,
		sleep:        sleepContext,
	}
}

// Parse runs the whole job protocol for the PDF at path and returns its markdown.
func (c *Client) Parse(ctx context.Context, path string) (string, error) {
	jobID, err := c.Submit(ctx, path)
	if err != nil {
		return "", err
	}
	job, err := c.Await(ctx, jobID)
	if err != nil {
		return "", err
	}
	return c.Result(ctx, job.ID)
}

type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Error        string `json:"error"`
}

// Submit uploads the file and returns the provider job id. Any non-200 answer is terminal.
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	body, contentType, err := c.uploadBody(path)
	if err != nil {
		return "", err
	}

	job, err := resilience.Call(ctx, c.executor, "parsing.submit", func(callCtx context.Context) (jobResponse, error) {
		var out jobResponse
		err := c.do(callCtx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(body), contentType, "submit", &out)
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", domain.WrapError(domain.ErrParsingFailed, "submit parsing job", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return "", domain.WrapError(domain.ErrParsingFailed, "submit parsing job", errors.New("provider returned no job id"))
	}
	c.logger.Info("parsing_submitted", "job_id", job.ID, "file", filepath.Base(path))
	return job.ID, nil
}

// Await polls the job until SUCCESS, FAILED or the attempt budget runs out. Non-200
// answers and transport errors count as attempts without changing state.
func (c *Client) Await(ctx context.Context, jobID string) (domain.ParsingJob, error) {
	job := domain.ParsingJob{ID: jobID, Status: domain.ParsingPending}
	endpoint := c.baseURL + "/job/" + url.PathEscape(jobID)

	for job.Attempts < c.maxAttempts {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return job, err
		}
		job.Attempts++

		var out jobResponse
		err := c.do(ctx, http.MethodGet, endpoint, nil, "", "poll", &out)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			c.logger.Warn("parsing_poll", "job_id", jobID, "attempt", job.Attempts, "error", err)
			continue
		}

		job.Status = mapStatus(out.Status)
		c.logger.Debug("parsing_poll", "job_id", jobID, "attempt", job.Attempts, "status", job.Status)

		switch job.Status {
		case domain.ParsingSuccess:
			c.observe(job)
			return job, nil
		case domain.ParsingFailed:
			job.Error = firstNonEmpty(out.ErrorMessage, out.Error)
			c.observe(job)
			return job, &domain.ParsingJobError{JobID: jobID, Status: domain.ParsingFailed, Attempts: job.Attempts, Message: job.Error}
		}
	}

	job.Status = domain.ParsingTimeout
	c.observe(job)
	return job, &domain.ParsingJobError{JobID: jobID, Status: domain.ParsingTimeout, Attempts: job.Attempts}
}

// Result fetches the markdown of a succeeded job. A non-200 answer is terminal even
// though the job itself succeeded.
func (c *Client) Result(ctx context.Context, jobID string) (string, error) {
	endpoint := c.baseURL + "/job/" + url.PathEscape(jobID) + "/result/markdown"

	markdown, err := resilience.Call(ctx, c.executor, "parsing.result", func(callCtx context.Context) (string, error) {
		var out struct {
			Markdown string `json:"markdown"`
		}
		if err := c.do(callCtx, http.MethodGet, endpoint, nil, "", "result", &out); err != nil {
			return "", err
		}
		return out.Markdown, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", domain.WrapError(domain.ErrParsingFailed, "retrieve parsing result", err)
	}
	return markdown, nil
}

func (c *Client) uploadBody(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy pdf into upload: %w", err)
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.WriteField("parsing_instruction", c.instruction); err != nil {
		return nil, "", fmt.Errorf("write instruction field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType, operation string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("parsing %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resilience.NewHTTPStatusError("parsing", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) observe(job domain.ParsingJob) {
	if c.observer != nil {
		c.observer.ObserveParsingPolls(job.Status, job.Attempts)
	}
}

func mapStatus(raw string) domain.ParsingStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED":
		return domain.ParsingSuccess
	case "FAILED", "ERROR", "CANCELED", "CANCELLED":
		return domain.ParsingFailed
	case "RUNNING", "IN_PROGRESS":
		return domain.ParsingRunning
	default:
		return domain.ParsingPending
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
