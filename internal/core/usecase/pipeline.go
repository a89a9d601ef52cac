package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
	"github.com/kirillkom/health-ai-service/internal/core/ports"
)

type PipelineConfig struct {
	DefaultMaxRecommendations int
	CandidateLimit            int
	ExtractedTextLimit        int
	LockTTL                   time.Duration
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.DefaultMaxRecommendations <= 0 {
		out.DefaultMaxRecommendations = domain.DefaultMaxRecommendations
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = out.DefaultMaxRecommendations
	}
	if out.ExtractedTextLimit <= 0 {
		out.ExtractedTextLimit = 1000
	}
	if out.LockTTL <= 0 {
		out.LockTTL = 10 * time.Minute
	}
	return out
}

// PipelineDeps are the collaborators of one executor. Lock and Logger are optional.
type PipelineDeps struct {
	Records         ports.RecordStore
	Downloader      ports.Downloader
	Scratch         ports.ScratchSpace
	TextReader      ports.TextReader
	Parser          ports.DocumentParser
	Extractor       ports.HealthExtractor
	Candidates      ports.CandidateSource
	Recommender     ports.Recommender
	Recommendations ports.RecommendationStore
	Lock            ports.RunLock
	Logger          *slog.Logger
}

type PipelineExecutor struct {
	records         ports.RecordStore
	downloader      ports.Downloader
	scratch         ports.ScratchSpace
	textReader      ports.TextReader
	parser          ports.DocumentParser
	extractor       ports.HealthExtractor
	candidates      ports.CandidateSource
	recommender     ports.Recommender
	recommendations ports.RecommendationStore
	lock            ports.RunLock
	logger          *slog.Logger

	cfg   PipelineConfig
	now   func() time.Time
	newID func() string
}

func NewPipelineExecutor(deps PipelineDeps, cfg PipelineConfig) *PipelineExecutor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineExecutor{
		records:         deps.Records,
		downloader:      deps.Downloader,
		scratch:         deps.Scratch,
		textReader:      deps.TextReader,
		parser:          deps.Parser,
		extractor:       deps.Extractor,
		candidates:      deps.Candidates,
		recommender:     deps.Recommender,
		recommendations: deps.Recommendations,
		lock:            deps.Lock,
		logger:          logger,
		cfg:             cfg.normalize(),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}
}

type pipelineResult struct {
	text string
	data domain.HealthData
}

// Run executes one analysis end to end and makes exactly one write-back, unless the
// record cannot be read or another run holds the record lock.
func (uc *PipelineExecutor) Run(ctx context.Context, req domain.AnalysisRequest) (domain.RunReport, error) {
	report := domain.RunReport{RecordID: req.RecordID}
	logger := uc.logger.With("record_id", req.RecordID, "request_id", req.RequestID)

	release, acquired := uc.acquire(ctx, logger, req.RecordID)
	if !acquired {
		report.Outcome = domain.OutcomeSkipped
		return report, nil
	}
	defer release()

	snapshot, err := uc.loadSnapshot(ctx, req)
	if err != nil {
		// Nothing to write back to; the record owner sees no state change.
		report.Outcome = domain.OutcomeAborted
		logger.Warn("pipeline_aborted", "error", err)
		return report, err
	}

	logger.Info("pipeline_started", "file_url", snapshot.FileURL)
	result, runErr := uc.processRecovering(ctx, logger, req, snapshot, &report)

	var payload domain.WriteBack
	if runErr != nil {
		report.Outcome = domain.OutcomeFailed
		payload = domain.FailedWriteBack(domain.FailureMessage(runErr))
		logger.Error("pipeline_failed", "error", runErr)
	} else {
		report.Outcome = domain.OutcomeProcessed
		if len(report.Degraded) > 0 {
			report.Outcome = domain.OutcomeDegraded
		}
		payload = domain.ProcessedWriteBack(truncateText(result.text, uc.cfg.ExtractedTextLimit), result.data)
	}

	if err := uc.writeBack(ctx, req, payload); err != nil {
		report.WriteBackErr = err
		logger.Error("writeback_failed", "status", payload.Status, "error", err)
		return report, errors.Join(runErr, err)
	}

	logger.Info("pipeline_finished", "outcome", report.Outcome, "degraded", report.Degraded)
	return report, runErr
}

func (uc *PipelineExecutor) acquire(ctx context.Context, logger *slog.Logger, recordID string) (func(), bool) {
	if uc.lock == nil {
		return func() {}, true
	}
	release, acquired, err := uc.lock.TryAcquire(ctx, recordID, uc.cfg.LockTTL)
	if err != nil {
		logger.Warn("run_lock_unavailable", "error", err)
		return func() {}, true
	}
	if !acquired {
		logger.Info("pipeline_skipped_locked")
		return nil, false
	}
	return release, true
}

// processRecovering turns a panicking step into a failed run so the record still
// receives its write-back.
func (uc *PipelineExecutor) processRecovering(
	ctx context.Context,
	logger *slog.Logger,
	req domain.AnalysisRequest,
	snapshot *domain.RecordSnapshot,
	report *domain.RunReport,
) (result pipelineResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline_step_panic", "panic", r)
			result, err = pipelineResult{}, fmt.Errorf("analysis step panicked: %v", r)
		}
	}()
	return uc.process(ctx, logger, req, snapshot, report)
}

func (uc *PipelineExecutor) process(
	ctx context.Context,
	logger *slog.Logger,
	req domain.AnalysisRequest,
	snapshot *domain.RecordSnapshot,
	report *domain.RunReport,
) (pipelineResult, error) {
	file, err := uc.download(ctx, snapshot.FileURL)
	if err != nil {
		return pipelineResult{}, err
	}
	defer uc.cleanup(logger, file.Path)

	ext := DocumentExtension(snapshot.FileURL, snapshot.ContentType, file.ContentType)
	kind, err := RouteDocument(ext)
	if err != nil {
		return pipelineResult{}, err
	}
	report.DocumentKind = kind

	text, data, extractErr := uc.extract(ctx, kind, ext, file.Path)
	if extractErr != nil {
		var degraded *degradedError
		if !errors.As(extractErr, &degraded) {
			return pipelineResult{}, extractErr
		}
		report.Degraded = append(report.Degraded, "extraction")
		logger.Warn("extraction_degraded", "kind", kind, "error", degraded.err)
	}
	data = data.Normalize()

	maxRecommendations := req.Options.MaxRecommendationsOr(uc.cfg.DefaultMaxRecommendations)
	candidates := uc.listCandidates(ctx, logger, maxRecommendations, report)
	report.Candidates = len(candidates)

	if extractErr == nil && len(candidates) > 0 {
		rec, err := uc.recommend(ctx, logger, req, snapshot, data, candidates, maxRecommendations, report)
		if err != nil {
			return pipelineResult{}, err
		}
		report.RecommendationID = rec.ID
	}

	return pipelineResult{text: text, data: data}, nil
}

func (uc *PipelineExecutor) loadSnapshot(ctx context.Context, req domain.AnalysisRequest) (*domain.RecordSnapshot, error) {
	snapshot, err := uc.records.GetSnapshot(ctx, req.RecordID, req.Credential)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRecordUnreadable, "read record snapshot", err)
	}
	if snapshot == nil {
		return nil, domain.WrapError(domain.ErrRecordUnreadable, "read record snapshot", errors.New("empty snapshot"))
	}
	return snapshot, nil
}

func (uc *PipelineExecutor) download(ctx context.Context, fileURL string) (ports.DownloadedFile, error) {
	if strings.TrimSpace(fileURL) == "" {
		return ports.DownloadedFile{}, domain.WrapError(domain.ErrDownloadFailed, "download source", errors.New("record has no file url"))
	}
	file, err := uc.downloader.Download(ctx, fileURL)
	if err != nil {
		return ports.DownloadedFile{}, domain.WrapError(domain.ErrDownloadFailed, "download source", err)
	}
	return file, nil
}

// degradedError marks extraction failures that keep the run alive.
type degradedError struct {
	err error
}

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

func (uc *PipelineExecutor) extract(ctx context.Context, kind domain.DocumentKind, ext, path string) (string, domain.HealthData, error) {
	switch kind {
	case domain.DocumentImage:
		raw, err := uc.scratch.ReadFile(path)
		if err != nil {
			return "", domain.HealthData{}, fmt.Errorf("read image: %w", err)
		}
		data, err := uc.extractor.ExtractFromImage(ctx, raw, imageMimeType(ext))
		if err != nil {
			return domain.ImagePlaceholderText, data, &degradedError{err: err}
		}
		return domain.ImagePlaceholderText, data, nil
	case domain.DocumentText:
		text, err := uc.textReader.ReadText(ctx, path)
		if err != nil {
			return "", domain.HealthData{}, fmt.Errorf("read text document: %w", err)
		}
		return uc.extractText(ctx, text)
	case domain.DocumentPDF:
		text, err := uc.parser.Parse(ctx, path)
		if err != nil {
			return "", domain.HealthData{}, fmt.Errorf("parse pdf: %w", err)
		}
		return uc.extractText(ctx, text)
	default:
		return "", domain.HealthData{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, kind)
	}
}

func (uc *PipelineExecutor) extractText(ctx context.Context, text string) (string, domain.HealthData, error) {
	if strings.TrimSpace(text) == "" {
		return text, domain.EmptyHealthData(), &degradedError{err: errors.New("document has no text")}
	}
	data, err := uc.extractor.ExtractFromText(ctx, text)
	if err != nil {
		return text, data, &degradedError{err: err}
	}
	return text, data, nil
}

func (uc *PipelineExecutor) listCandidates(ctx context.Context, logger *slog.Logger, maxRecommendations int, report *domain.RunReport) []domain.Candidate {
	limit := uc.cfg.CandidateLimit
	if maxRecommendations > limit {
		limit = maxRecommendations
	}
	candidates, err := uc.candidates.ListCandidates(ctx, limit)
	if err != nil {
		report.Degraded = append(report.Degraded, "candidates")
		logger.Warn("candidates_unavailable", "error", err)
		return nil
	}
	return candidates
}

func (uc *PipelineExecutor) recommend(
	ctx context.Context,
	logger *slog.Logger,
	req domain.AnalysisRequest,
	snapshot *domain.RecordSnapshot,
	data domain.HealthData,
	candidates []domain.Candidate,
	maxRecommendations int,
	report *domain.RunReport,
) (*domain.Recommendation, error) {
	plan, err := uc.recommender.Recommend(ctx, data, candidates, maxRecommendations)
	if err != nil {
		report.Degraded = append(report.Degraded, "recommendation")
		logger.Warn("recommendation_degraded", "error", err)
	}
	plan = selectRecommendations(plan, candidates, maxRecommendations)

	ownerID := snapshot.OwnerID
	if ownerID == "" {
		ownerID = req.OwnerID
	}
	rec := &domain.Recommendation{
		ID:              uc.newID(),
		UserID:          ownerID,
		MedicalRecordID: req.RecordID,
		RecordTitle:     snapshot.Title,
		AnalysisSummary: plan.AnalysisSummary,
		Recommendations: plan.Recommendations,
		HealthData:      data,
		CreatedAt:       uc.now(),
	}
	if err := uc.recommendations.Create(ctx, rec); err != nil {
		return nil, domain.WrapError(domain.ErrStorageWrite, "persist recommendation", err)
	}
	return rec, nil
}

func (uc *PipelineExecutor) writeBack(ctx context.Context, req domain.AnalysisRequest, payload domain.WriteBack) error {
	// The run deadline may already be spent; the write-back has its own per-call timeout.
	return uc.records.WriteBack(context.WithoutCancel(ctx), req.RecordID, req.Credential, payload)
}

func (uc *PipelineExecutor) cleanup(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := uc.scratch.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("temp_file_cleanup_failed", "path", path, "error", err)
	}
}

// selectRecommendations keeps known, distinct candidates up to the requested cap.
func selectRecommendations(plan domain.RecommendationPlan, candidates []domain.Candidate, maxRecommendations int) domain.RecommendationPlan {
	known := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		known[candidate.ID] = struct{}{}
	}
	limit := maxRecommendations
	if len(candidates) < limit {
		limit = len(candidates)
	}

	selected := make([]domain.RecommendationItem, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, item := range plan.Recommendations {
		if len(selected) == limit {
			break
		}
		if _, ok := known[item.CandidateID]; !ok {
			continue
		}
		if _, dup := seen[item.CandidateID]; dup {
			continue
		}
		seen[item.CandidateID] = struct{}{}
		selected = append(selected, item)
	}

	plan.Recommendations = selected
	if strings.TrimSpace(plan.AnalysisSummary) == "" {
		plan.AnalysisSummary = domain.FallbackAnalysisSummary
	}
	return plan
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
