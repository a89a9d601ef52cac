package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// RecommendationRepository stores recommendation documents. Rows are never updated
// except for the feedback column.
type RecommendationRepository struct {
	db *sql.DB
}

func NewRecommendationRepository(db *sql.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

func (r *RecommendationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS recommendations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	medical_record_id TEXT NOT NULL,
	record_title TEXT NOT NULL DEFAULT '',
	analysis_summary TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL DEFAULT '[]'::jsonb,
	health_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	feedback JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_user_created ON recommendations(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_recommendations_record ON recommendations(medical_record_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RecommendationRepository) Create(ctx context.Context, rec *domain.Recommendation) error {
	itemsJSON, err := json.Marshal(nonNilItems(rec.Recommendations))
	if err != nil {
		return fmt.Errorf("marshal recommendation items: %w", err)
	}
	healthJSON, err := json.Marshal(rec.HealthData.Normalize())
	if err != nil {
		return fmt.Errorf("marshal health data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO recommendations (
	id, user_id, medical_record_id, record_title, analysis_summary, items, health_data, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		rec.ID, rec.UserID, rec.MedicalRecordID, rec.RecordTitle, rec.AnalysisSummary,
		itemsJSON, healthJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

func (r *RecommendationRepository) List(ctx context.Context, filter domain.RecommendationFilter) (domain.RecommendationPage, error) {
	filter = filter.Normalize()

	var total int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM recommendations
WHERE user_id = $1 AND ($2 = '' OR medical_record_id = $2)
`, filter.UserID, filter.MedicalRecordID).Scan(&total)
	if err != nil {
		return domain.RecommendationPage{}, fmt.Errorf("count recommendations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, medical_record_id, record_title, analysis_summary, items, health_data, feedback, created_at
FROM recommendations
WHERE user_id = $1 AND ($2 = '' OR medical_record_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, filter.UserID, filter.MedicalRecordID, filter.Limit, filter.Offset())
	if err != nil {
		return domain.RecommendationPage{}, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Recommendation, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return domain.RecommendationPage{}, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return domain.RecommendationPage{}, fmt.Errorf("iterate recommendations: %w", err)
	}
	return domain.RecommendationPage{Items: items, Total: total}, nil
}

func (r *RecommendationRepository) GetByID(ctx context.Context, userID, id string) (*domain.Recommendation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, medical_record_id, record_title, analysis_summary, items, health_data, feedback, created_at
FROM recommendations
WHERE id = $1 AND user_id = $2
`, id, userID)

	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get recommendation", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecommendationRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recommendations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	return requireAffected(result, "delete recommendation", id)
}

func (r *RecommendationRepository) SetFeedback(ctx context.Context, userID, id string, feedback domain.Feedback) error {
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE recommendations
SET feedback = $3
WHERE id = $1 AND user_id = $2
`, id, userID, feedbackJSON)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return requireAffected(result, "save feedback", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var itemsRaw, healthRaw, feedbackRaw []byte

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.MedicalRecordID, &rec.RecordTitle, &rec.AnalysisSummary,
		&itemsRaw, &healthRaw, &feedbackRaw, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan recommendation: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &rec.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendation items: %w", err)
	}
	rec.Recommendations = nonNilItems(rec.Recommendations)
	if err := json.Unmarshal(healthRaw, &rec.HealthData); err != nil {
		return nil, fmt.Errorf("unmarshal health data: %w", err)
	}
	rec.HealthData = rec.HealthData.Normalize()
	if len(feedbackRaw) > 0 {
		var feedback domain.Feedback
		if err := json.Unmarshal(feedbackRaw, &feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		rec.Feedback = &feedback
	}
	return &rec, nil
}

func requireAffected(result sql.Result, operation, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nonNilItems(items []domain.RecommendationItem) []domain.RecommendationItem {
	if items == nil {
		return []domain.RecommendationItem{}
	}
	return items
}
