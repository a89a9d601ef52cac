package healthrecords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
)

const serviceName = "health"

// Client reads medical records from the health service and posts analysis results back.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	readTimeout  time.Duration
	writeTimeout time.Duration
	executor     *resilience.Executor
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HTTPClient   *http.Client
	Executor     *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		executor:     opts.Executor,
	}
}

// recordEnvelope accepts the record either at the top level or under "data".
type recordEnvelope struct {
	domain.RecordSnapshot
	Data *domain.RecordSnapshot `json:"data"`
}

func (c *Client) GetSnapshot(ctx context.Context, recordID, credential string) (*domain.RecordSnapshot, error) {
	endpoint := fmt.Sprintf("%s/health/medical-records/%s", c.baseURL, url.PathEscape(recordID))

	snapshot, err := resilience.Call(ctx, c.executor, "health.get_record", func(callCtx context.Context) (*domain.RecordSnapshot, error) {
		callCtx, cancel := context.WithTimeout(callCtx, c.readTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create get record request: %w", err)
		}
		setCredential(req, credential)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("health get record request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.NewHTTPStatusError(serviceName, "get record", resp)
		}

		var envelope recordEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode get record response: %w", err)
		}
		out := envelope.RecordSnapshot
		if envelope.Data != nil {
			out = *envelope.Data
		}
		if out.ID == "" {
			out.ID = recordID
		}
		return &out, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, mapStatusError("get record", err)
	}
	return snapshot, nil
}

// WriteBack sends one PATCH to the record's ai-callback route. Any non-200 answer is an error.
func (c *Client) WriteBack(ctx context.Context, recordID, credential string, payload domain.WriteBack) error {
	endpoint := fmt.Sprintf("%s/health/medical-records/%s/ai-callback", c.baseURL, url.PathEscape(recordID))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal write-back payload: %w", err)
	}

	err = c.executor.Execute(ctx, "health.write_back", func(callCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(callCtx, c.writeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPatch, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create write-back request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		setCredential(req, credential)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("health write-back request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return resilience.NewHTTPStatusError(serviceName, "write-back", resp)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return mapStatusError("write-back", err)
}

// setCredential forwards the caller's Authorization value verbatim.
func setCredential(req *http.Request, credential string) {
	if strings.TrimSpace(credential) != "" {
		req.Header.Set("Authorization", credential)
	}
}

func mapStatusError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch resilience.StatusCode(err) {
	case http.StatusNotFound:
		return domain.WrapError(domain.ErrNotFound, operation, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.WrapError(domain.ErrUnauthorized, operation, err)
	}
	return resilience.WrapTemporary(operation, err)
}
