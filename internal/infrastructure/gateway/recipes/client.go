package recipes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
)

// Client lists recommendation candidates from the recipe catalog.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	base := strings.TrimRight(baseURL, "/")
	endpoint := base + "/api/v1/recipes"
	if strings.Contains(base, "/api/v1") {
		endpoint = base + "/recipes"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		timeout:    timeout,
		executor:   executor,
	}
}

type recipePayload struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Ingredients json.RawMessage `json:"ingredients"`
	Nutrition   json.RawMessage `json:"nutrition"`
}

func (c *Client) ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.endpoint
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	payload, err := resilience.Call(ctx, c.executor, "recipes.list", func(callCtx context.Context) ([]recipePayload, error) {
		callCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create list recipes request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("recipes list request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, resilience.NewHTTPStatusError("recipes", "list", resp)
		}

		var body struct {
			Data []recipePayload `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode list recipes response: %w", err)
		}
		return body.Data, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("list candidates", err)
	}

	return normalizeCandidates(payload, limit), nil
}

// normalizeCandidates keeps the fields the recommender sees and drops entries without an id.
func normalizeCandidates(payload []recipePayload, limit int) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(payload))
	for _, item := range payload {
		id := rawID(item.ID)
		if id == "" {
			continue
		}
		out = append(out, domain.Candidate{
			ID:          id,
			Title:       item.Title,
			Ingredients: rawOrDefault(item.Ingredients, "[]"),
			Nutrition:   rawOrDefault(item.Nutrition, "{}"),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

func rawOrDefault(raw json.RawMessage, fallback string) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage(fallback)
	}
	return raw
}
