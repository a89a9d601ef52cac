package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

const analysisStartedMessage = "AI analysis started successfully"

type triggerRequest struct {
	MedicalRecordID string                 `json:"medicalRecordId"`
	Options         domain.AnalysisOptions `json:"options"`
}

type analysisAccepted struct {
	Message         string `json:"message"`
	Status          string `json:"status"`
	AnalysisID      string `json:"analysisId"`
	MedicalRecordID string `json:"medicalRecordId"`
	RequestID       string `json:"requestId"`
}

func (rt *Router) triggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	identity := identityFromRequest(r)
	accepted, err := rt.trigger.Trigger(r.Context(), domain.AnalysisRequest{
		RecordID:   body.MedicalRecordID,
		OwnerID:    identity.UserID,
		Credential: identity.Credential,
		Options:    body.Options,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newAnalysisAccepted(accepted))
}

func (rt *Router) reprocessAnalysis(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Options domain.AnalysisOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	identity := identityFromRequest(r)
	accepted, err := rt.trigger.Reprocess(r.Context(), domain.AnalysisRequest{
		RecordID:   chi.URLParam(r, "medicalRecordId"),
		OwnerID:    identity.UserID,
		Credential: identity.Credential,
		Options:    body.Options,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newAnalysisAccepted(accepted))
}

// The record id doubles as the analysis correlation token.
func newAnalysisAccepted(req domain.AnalysisRequest) analysisAccepted {
	return analysisAccepted{
		Message:         analysisStartedMessage,
		Status:          string(domain.RecordProcessing),
		AnalysisID:      req.RecordID,
		MedicalRecordID: req.RecordID,
		RequestID:       req.RequestID,
	}
}
