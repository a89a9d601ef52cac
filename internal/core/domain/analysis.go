package domain

import (
	"fmt"
	"strings"
)

const DefaultMaxRecommendations = 5

// AnalysisOptions is the caller-supplied options bag of a trigger request.
type AnalysisOptions struct {
	MaxRecommendations int    `json:"maxRecommendations,omitempty"`
	Mode               string `json:"mode,omitempty"`
}

// AnalysisRequest identifies one pipeline run. It is built at trigger time and
// never mutated afterwards.
type AnalysisRequest struct {
	RecordID   string          `json:"medicalRecordId"`
	OwnerID    string          `json:"ownerId,omitempty"`
	Credential string          `json:"credential,omitempty"`
	Options    AnalysisOptions `json:"options"`
	RequestID  string          `json:"requestId,omitempty"`
}

func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" {
		return fmt.Errorf("%w: medicalRecordId is required", ErrInvalidInput)
	}
	if r.Options.MaxRecommendations < 0 {
		return fmt.Errorf("%w: maxRecommendations must not be negative", ErrInvalidInput)
	}
	return nil
}

// MaxRecommendationsOr resolves the effective cap, falling back when the option is unset.
func (o AnalysisOptions) MaxRecommendationsOr(fallback int) int {
	if o.MaxRecommendations > 0 {
		return o.MaxRecommendations
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxRecommendations
}
