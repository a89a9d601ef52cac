package httpadapter

import (
	"net/http"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError hides internal error text behind a generic message for 5xx responses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		message = "internal error"
	case http.StatusServiceUnavailable:
		message = "service temporarily unavailable"
	}
	writeError(w, status, message)
}
