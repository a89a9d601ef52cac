package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Candidate is a recommendation-eligible recipe fetched from the catalog service.
type Candidate struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Ingredients json.RawMessage `json:"ingredients"`
	Nutrition   json.RawMessage `json:"nutrition"`
}

// RecommendationItem links one candidate to the model's reason for picking it.
type RecommendationItem struct {
	CandidateID string `json:"recipeId"`
	Reason      string `json:"reason"`
}

// UnmarshalJSON accepts either recipeId or candidateId as the item key.
func (i *RecommendationItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		RecipeID    json.RawMessage `json:"recipeId"`
		CandidateID json.RawMessage `json:"candidateId"`
		Reason      string          `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Reason = raw.Reason
	i.CandidateID = idString(raw.RecipeID)
	if i.CandidateID == "" {
		i.CandidateID = idString(raw.CandidateID)
	}
	return nil
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// RecommendationPlan is the parsed reply of the recommendation prompt.
type RecommendationPlan struct {
	AnalysisSummary string               `json:"analysisSummary"`
	Recommendations []RecommendationItem `json:"recommendations"`
}

const FallbackAnalysisSummary = "Recommendations are unavailable for this record."

func FallbackRecommendationPlan() RecommendationPlan {
	return RecommendationPlan{
		AnalysisSummary: FallbackAnalysisSummary,
		Recommendations: []RecommendationItem{},
	}
}

// Feedback is the only mutable part of a stored recommendation.
type Feedback struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

func (f Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	return nil
}

// Recommendation is the persisted result of one successful run.
type Recommendation struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	MedicalRecordID string               `json:"medicalRecordId"`
	RecordTitle     string               `json:"recordTitle"`
	AnalysisSummary string               `json:"analysisSummary"`
	Recommendations []RecommendationItem `json:"recommendations"`
	HealthData      HealthData           `json:"healthData"`
	Feedback        *Feedback            `json:"feedback"`
	CreatedAt       time.Time            `json:"createdAt"`
}

type RecommendationFilter struct {
	UserID          string
	MedicalRecordID string
	Page            int
	Limit           int
}

func (f RecommendationFilter) Normalize() RecommendationFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

func (f RecommendationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type RecommendationPage struct {
	Items []Recommendation
	Total int
}
