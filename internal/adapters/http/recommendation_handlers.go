package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

type pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalItems   int `json:"totalItems"`
	TotalPages   int `json:"totalPages"`
	ItemsPerPage int `json:"itemsPerPage"`
}

type recommendationList struct {
	Data       []domain.Recommendation `json:"data"`
	Pagination pagination              `json:"pagination"`
}

func (rt *Router) listRecommendations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.RecommendationFilter{
		UserID:          identityFromRequest(r).UserID,
		MedicalRecordID: strings.TrimSpace(query.Get("medicalRecordId")),
	}
	var ok bool
	if filter.Page, ok = queryInt(query.Get("page")); !ok {
		writeError(w, http.StatusBadRequest, "page and limit must be integers")
		return
	}
	if filter.Limit, ok = queryInt(query.Get("limit")); !ok {
		writeError(w, http.StatusBadRequest, "page and limit must be integers")
		return
	}
	filter = filter.Normalize()

	page, err := rt.reader.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recommendationList{
		Data: page.Items,
		Pagination: pagination{
			CurrentPage:  filter.Page,
			TotalItems:   page.Total,
			TotalPages:   (page.Total + filter.Limit - 1) / filter.Limit,
			ItemsPerPage: filter.Limit,
		},
	})
}

func (rt *Router) getRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.reader.Get(r.Context(), identityFromRequest(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) deleteRecommendation(w http.ResponseWriter, r *http.Request) {
	if err := rt.reader.Delete(r.Context(), identityFromRequest(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var feedback domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	err := rt.reader.SubmitFeedback(r.Context(), identityFromRequest(r).UserID, chi.URLParam(r, "id"), feedback)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Feedback received"})
}

// queryInt parses an optional positive query integer; zero means unset.
func queryInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
