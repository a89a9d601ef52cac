package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
)

type TriggerAnalysisUseCase struct {
	scheduler ports.AnalysisScheduler
	records   ports.RecordStore
	newID     func() string
}

func NewTriggerAnalysisUseCase(scheduler ports.AnalysisScheduler, records ports.RecordStore) *TriggerAnalysisUseCase {
	return &TriggerAnalysisUseCase{
		scheduler: scheduler,
		records:   records,
		newID:     uuid.NewString,
	}
}

// Trigger schedules one run and returns as soon as the scheduler accepts it.
func (uc *TriggerAnalysisUseCase) Trigger(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	req.RecordID = strings.TrimSpace(req.RecordID)
	if err := req.Validate(); err != nil {
		return domain.AnalysisRequest{}, err
	}
	req.RequestID = uc.newID()

	if err := uc.scheduler.Schedule(ctx, req); err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			return domain.AnalysisRequest{}, err
		}
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrTemporary, "schedule analysis", err)
	}
	return req, nil
}

// Reprocess resets the record to processing and schedules a fresh run. Nothing is
// scheduled when the reset is rejected.
func (uc *TriggerAnalysisUseCase) Reprocess(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	req.RecordID = strings.TrimSpace(req.RecordID)
	if err := req.Validate(); err != nil {
		return domain.AnalysisRequest{}, err
	}

	reset := domain.WriteBack{Status: domain.RecordProcessing}
	if err := uc.records.WriteBack(ctx, req.RecordID, req.Credential, reset); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) || domain.IsKind(err, domain.ErrUnauthorized) {
			return domain.AnalysisRequest{}, err
		}
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrTemporary, "reset record status", err)
	}
	return uc.Trigger(ctx, req)
}
