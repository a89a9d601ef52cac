package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// Recommender asks the model to pick candidates. On failure it returns the fallback plan.
type Recommender struct {
	client *Client
}

func NewRecommender(client *Client) *Recommender {
	return &Recommender{client: client}
}

func (r *Recommender) Recommend(ctx context.Context, data domain.HealthData, candidates []domain.Candidate, max int) (domain.RecommendationPlan, error) {
	prompt, err := r.client.prompts.buildRecommendation(data, candidates, max)
	if err != nil {
		return domain.FallbackRecommendationPlan(), err
	}

	messages := []message{
		{Role: "system", Content: r.client.prompts.RecommendationSystem},
		{Role: "user", Content: prompt},
	}
	raw, err := r.client.completeJSON(ctx, "recommend", r.client.textModel, messages)
	if err != nil {
		return domain.FallbackRecommendationPlan(), err
	}

	var plan domain.RecommendationPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return domain.FallbackRecommendationPlan(), fmt.Errorf("parse recommendation json: %w", err)
	}
	if plan.Recommendations == nil {
		plan.Recommendations = []domain.RecommendationItem{}
	}
	return plan, nil
}
