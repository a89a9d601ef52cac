package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
)

// RecommendationQueryUseCase serves stored recommendations to their owner.
type RecommendationQueryUseCase struct {
	store ports.RecommendationStore
}

func NewRecommendationQueryUseCase(store ports.RecommendationStore) *RecommendationQueryUseCase {
	return &RecommendationQueryUseCase{store: store}
}

func (uc *RecommendationQueryUseCase) List(ctx context.Context, filter domain.RecommendationFilter) (domain.RecommendationPage, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return domain.RecommendationPage{}, domain.ErrUnauthorized
	}
	page, err := uc.store.List(ctx, filter.Normalize())
	if err != nil {
		return domain.RecommendationPage{}, err
	}
	if page.Items == nil {
		page.Items = []domain.Recommendation{}
	}
	return page, nil
}

func (uc *RecommendationQueryUseCase) Get(ctx context.Context, userID, id string) (*domain.Recommendation, error) {
	if err := requireOwner(userID, id); err != nil {
		return nil, err
	}
	return uc.store.GetByID(ctx, userID, id)
}

func (uc *RecommendationQueryUseCase) Delete(ctx context.Context, userID, id string) error {
	if err := requireOwner(userID, id); err != nil {
		return err
	}
	return uc.store.Delete(ctx, userID, id)
}

func (uc *RecommendationQueryUseCase) SubmitFeedback(ctx context.Context, userID, id string, feedback domain.Feedback) error {
	if err := requireOwner(userID, id); err != nil {
		return err
	}
	if err := feedback.Validate(); err != nil {
		return err
	}
	feedback.Comment = strings.TrimSpace(feedback.Comment)
	return uc.store.SetFeedback(ctx, userID, id, feedback)
}

func requireOwner(userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrUnauthorized
	}
	if strings.TrimSpace(id) == "" {
		return domain.ErrInvalidInput
	}
	return nil
}
