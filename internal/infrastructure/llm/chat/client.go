package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	Timeout     time.Duration

	// RateLimit caps model calls per second across the process; 0 disables pacing.
	RateLimit float64

	// Temperature is sent with every completion; nil selects defaultTemperature.
	Temperature *float64
}

const defaultTemperature = 0.1

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	textModel   string
	visionModel string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter
	executor    *resilience.Executor
	prompts     Prompts
}

func New(cfg Config, prompts Prompts, executor *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	temperature := defaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	if prompts.recommendation == nil {
		if defaults, err := LoadPrompts(""); err == nil {
			prompts = defaults
		}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		temperature: temperature,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{},
		limiter:     limiter,
		executor:    executor,
		prompts:     prompts,
	}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// completeJSON sends one chat completion in JSON mode and returns the JSON object
// found in the reply.
func (c *Client) completeJSON(ctx context.Context, operation, model string, messages []message) (string, error) {
	raw, err := c.complete(ctx, operation, model, messages, true)
	if err != nil {
		return "", err
	}
	return extractJSONObject(raw), nil
}

func (c *Client) complete(ctx context.Context, operation, model string, messages []message, jsonMode bool) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for model rate limit: %w", err)
		}
	}

	payload := completionRequest{
		Model:          model,
		Messages:       messages,
		Temperature: c.temperature,
	}
	if jsonMode {
		payload.ResponseFormat = map[string]any{"type": "json_object"}
	}

	return resilience.Call(ctx, c.executor, "model."+operation, func(callCtx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()

		var response completionResponse
		if err := c.postJSON(callCtx, "/chat/completions", payload, &response, operation); err != nil {
			return "", err
		}
		if len(response.Choices) == 0 {
			return "", fmt.Errorf("model %s returned no choices", operation)
		}
		return strings.TrimSpace(response.Choices[0].Message.Content), nil
	}, resilience.ClassifyHTTPError)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("model", operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
