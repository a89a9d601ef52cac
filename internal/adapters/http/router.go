package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/health-ai-service/internal/core/ports"
	"github.com/kirillkom/health-ai-service/internal/observability/metrics"
)

type Options struct {
	Service        string
	Logger         *slog.Logger
	Metrics        *metrics.HTTPServerMetrics
	MetricsHandler http.Handler
}

type Router struct {
	trigger   ports.AnalysisTrigger
	reader    ports.RecommendationReader
	chatter   ports.NutritionChat
	validator *requestValidator
	opts      Options
}

func NewRouter(
	trigger ports.AnalysisTrigger,
	reader ports.RecommendationReader,
	chatter ports.NutritionChat,
	opts Options,
) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("http router: %w", err)
	}
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		trigger:   trigger,
		reader:    reader,
		chatter:   chatter,
		validator: validator,
		opts:      opts,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.opts.Logger))
	r.Use(recoverMiddleware(rt.opts.Logger))
	if rt.opts.Metrics != nil {
		r.Use(rt.opts.Metrics.Middleware(rt.opts.Service))
	}

	r.Get("/healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", rt.opts.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		api.Use(rt.validator.Middleware)

		api.Post("/analyze", rt.triggerAnalysis)
		api.Post("/ai/analyze", rt.triggerAnalysis)
		api.Post("/analyze/{medicalRecordId}/reprocess", rt.reprocessAnalysis)

		api.Get("/ai/recommendations", rt.listRecommendations)
		api.Get("/ai/recommendations/{id}", rt.getRecommendation)
		api.Delete("/ai/recommendations/{id}", rt.deleteRecommendation)
		api.Post("/ai/recommendations/{id}/feedback", rt.submitFeedback)

		api.Post("/ai/chat", rt.chat)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
