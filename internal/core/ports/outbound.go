package ports

import (
	"context"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// AnalysisScheduler hands a request to background execution and returns immediately.
type AnalysisScheduler interface {
	Schedule(ctx context.Context, req domain.AnalysisRequest) error
}

// RecordStore reads record snapshots and accepts write-backs.
type RecordStore interface {
	GetSnapshot(ctx context.Context, recordID, credential string) (*domain.RecordSnapshot, error)
	WriteBack(ctx context.Context, recordID, credential string, payload domain.WriteBack) error
}

// DownloadedFile is a source document copied into the scratch area.
type DownloadedFile struct {
	Path        string
	ContentType string
	Size        int64
}

// Downloader copies a source document to a local temporary file.
type Downloader interface {
	Download(ctx context.Context, fileURL string) (DownloadedFile, error)
}

// ScratchSpace owns temporary files for the lifetime of one run.
type ScratchSpace interface {
	ReadFile(path string) ([]byte, error)
	Remove(path string) error
}

// TextReader reads a local text document as UTF-8.
type TextReader interface {
	ReadText(ctx context.Context, path string) (string, error)
}

// DocumentParser converts a local PDF into markdown text.
type DocumentParser interface {
	Parse(ctx context.Context, path string) (string, error)
}

// HealthExtractor turns text or image bytes into structured health data. On failure
// it still returns empty-but-valid data alongside the error.
type HealthExtractor interface {
	ExtractFromText(ctx context.Context, text string) (domain.HealthData, error)
	ExtractFromImage(ctx context.Context, image []byte, mimeType string) (domain.HealthData, error)
}

// Recommender picks candidates for extracted health data. On failure it still
// returns the fallback plan alongside the error.
type Recommender interface {
	Recommend(ctx context.Context, data domain.HealthData, candidates []domain.Candidate, max int) (domain.RecommendationPlan, error)
}

// ChatAssistant answers a question in plain text. On failure it still returns
// the fallback reply alongside the error.
type ChatAssistant interface {
	Chat(ctx context.Context, message, background string) (string, error)
}

// CandidateSource lists recommendation candidates from the catalog service.
type CandidateSource interface {
	ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error)
}

// RecommendationStore persists recommendation documents. Create is append-only.
type RecommendationStore interface {
	Create(ctx context.Context, rec *domain.Recommendation) error
	List(ctx context.Context, filter domain.RecommendationFilter) (domain.RecommendationPage, error)
	GetByID(ctx context.Context, userID, id string) (*domain.Recommendation, error)
	Delete(ctx context.Context, userID, id string) error
	SetFeedback(ctx context.Context, userID, id string, feedback domain.Feedback) error
}

// RunLock serializes runs for one record id. The returned release func is never nil
// when acquired is true.
type RunLock interface {
	TryAcquire(ctx context.Context, recordID string, ttl time.Duration) (release func(), acquired bool, err error)
}
