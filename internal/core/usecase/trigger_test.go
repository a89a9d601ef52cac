package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

type schedulerFake struct {
	scheduled []domain.AnalysisRequest
	err       error
}

func (f *schedulerFake) Schedule(_ context.Context, req domain.AnalysisRequest) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, req)
	return nil
}

func newTriggerUseCase(scheduler *schedulerFake, records *recordStoreFake) *TriggerAnalysisUseCase {
	uc := NewTriggerAnalysisUseCase(scheduler, records)
	uc.newID = func() string { return "analysis-1" }
	return uc
}

func TestTriggerSchedulesRequest(t *testing.T) {
	scheduler := &schedulerFake{}
	uc := newTriggerUseCase(scheduler, &recordStoreFake{})

	got, err := uc.Trigger(context.Background(), domain.AnalysisRequest{
		RecordID:   " rec-1 ",
		Credential: "Bearer abc",
		Options:    domain.AnalysisOptions{MaxRecommendations: 3},
	})
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got.RequestID != "analysis-1" || got.RecordID != "rec-1" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0].Credential != "Bearer abc" {
		t.Fatalf("expected one scheduled request with credential, got %+v", scheduler.scheduled)
	}
}

func TestTriggerRejectsMissingRecordID(t *testing.T) {
	scheduler := &schedulerFake{}
	uc := newTriggerUseCase(scheduler, &recordStoreFake{})

	_, err := uc.Trigger(context.Background(), domain.AnalysisRequest{RecordID: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(scheduler.scheduled) != 0 {
		t.Fatalf("nothing must be scheduled for invalid input")
	}
}

func TestTriggerRejectsNegativeMax(t *testing.T) {
	uc := newTriggerUseCase(&schedulerFake{}, &recordStoreFake{})

	_, err := uc.Trigger(context.Background(), domain.AnalysisRequest{
		RecordID: "rec-1",
		Options:  domain.AnalysisOptions{MaxRecommendations: -1},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTriggerMapsSchedulerFailureToTemporary(t *testing.T) {
	uc := newTriggerUseCase(&schedulerFake{err: errors.New("nats: connection closed")}, &recordStoreFake{})

	_, err := uc.Trigger(context.Background(), domain.AnalysisRequest{RecordID: "rec-1"})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestReprocessResetsStatusBeforeScheduling(t *testing.T) {
	scheduler := &schedulerFake{}
	records := &recordStoreFake{}
	uc := newTriggerUseCase(scheduler, records)

	if _, err := uc.Reprocess(context.Background(), domain.AnalysisRequest{RecordID: "rec-1"}); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if len(records.writeBacks) != 1 || records.writeBacks[0].Status != domain.RecordProcessing {
		t.Fatalf("expected processing reset, got %+v", records.writeBacks)
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected one scheduled run, got %d", len(scheduler.scheduled))
	}
}

func TestReprocessDoesNotScheduleWhenResetFails(t *testing.T) {
	scheduler := &schedulerFake{}
	uc := newTriggerUseCase(scheduler, &recordStoreFake{writeErr: errors.New("status 500")})

	_, err := uc.Reprocess(context.Background(), domain.AnalysisRequest{RecordID: "rec-1"})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if len(scheduler.scheduled) != 0 {
		t.Fatalf("nothing must be scheduled after a failed reset")
	}
}
