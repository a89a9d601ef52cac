package ports

import (
	"context"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// AnalysisTrigger is the inbound contract for starting an analysis without waiting for it.
type AnalysisTrigger interface {
	Trigger(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error)
	Reprocess(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error)
}

// AnalysisRunner executes one pipeline run end to end.
type AnalysisRunner interface {
	Run(ctx context.Context, req domain.AnalysisRequest) (domain.RunReport, error)
}

// RecommendationReader is the inbound read/feedback model for stored recommendations.
type RecommendationReader interface {
	List(ctx context.Context, filter domain.RecommendationFilter) (domain.RecommendationPage, error)
	Get(ctx context.Context, userID, id string) (*domain.Recommendation, error)
	Delete(ctx context.Context, userID, id string) error
	SubmitFeedback(ctx context.Context, userID, id string, feedback domain.Feedback) error
}

// NutritionChat answers free-form questions synchronously.
type NutritionChat interface {
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error)
}
